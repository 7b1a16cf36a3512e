package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TokenError indicates the token-issuing collaborator could not provide
// streaming credentials. Fatal to Start; operator-correctable.
type TokenError struct {
	Err error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token issuance failed: %v", e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

// TokenSource provides the websocket URL for a new recognition session.
// Each call must return a fresh, ready-to-dial URL.
type TokenSource interface {
	SocketURL(ctx context.Context) (string, error)
}

// tokenResponse covers both shapes the issuing endpoint may return:
// a complete socket URL, or an ephemeral token to append to a base URL.
type tokenResponse struct {
	WSURL     string `json:"wsUrl"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// HTTPTokenSource obtains credentials by POSTing to a token endpoint.
type HTTPTokenSource struct {
	// Endpoint is the token-issuing URL, POSTed to with an empty body.
	Endpoint string
	// SocketBase is the recognition websocket URL used with the token
	// response shape; the token is appended as a query parameter.
	SocketBase string
	// Client defaults to a 10s-timeout client when nil.
	Client *http.Client
}

func (s *HTTPTokenSource) SocketURL(ctx context.Context) (string, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, nil)
	if err != nil {
		return "", &TokenError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", &TokenError{Err: fmt.Errorf("request token: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TokenError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &TokenError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", &TokenError{Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	switch {
	case tok.WSURL != "":
		return tok.WSURL, nil
	case tok.Token != "":
		u, err := url.Parse(s.SocketBase)
		if err != nil {
			return "", &TokenError{Err: fmt.Errorf("parse socket base: %w", err)}
		}
		q := u.Query()
		q.Set("token", tok.Token)
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		return "", &TokenError{Err: fmt.Errorf("response carries neither wsUrl nor token")}
	}
}

// StaticTokenSource returns a fixed URL; useful for tests and for
// deployments where the credential is embedded in the URL out of band.
type StaticTokenSource string

func (s StaticTokenSource) SocketURL(context.Context) (string, error) {
	return string(s), nil
}
