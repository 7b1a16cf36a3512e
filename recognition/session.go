// Package recognition owns the persistent socket to the streaming
// speech-recognition service: connect/reconnect/terminate lifecycle,
// outbound audio frame transmission, and demultiplexing of inbound
// protocol messages into interim/final transcript events.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/60cod/realtime-translator/internal/metrics"
	"github.com/60cod/realtime-translator/internal/types"
)

// Sentinel errors.
var (
	// ErrAlreadyRunning is returned by Start when the session is not Idle.
	ErrAlreadyRunning = errors.New("recognition session already running")
	// ErrConnectTimeout is returned when the socket does not reach Open
	// within the configured connect timeout.
	ErrConnectTimeout = errors.New("recognition connect timeout")
	// ErrNotOpen is returned by SendAudio while the socket is not Open.
	// Frames rejected this way are dropped, never queued: the service
	// only accepts live streaming input.
	ErrNotOpen = errors.New("recognition socket not open")
	// ErrStopped is returned by Start when Stop ended the session while
	// the connection was still being established.
	ErrStopped = errors.New("recognition session stopped")
)

// State is the connection lifecycle state of a session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is a transcript emitted by the session, in arrival order.
type Event struct {
	Kind       types.TranscriptKind
	Text       string
	Confidence float64
}

// Defaults for SessionConfig zero values.
const (
	DefaultConnectTimeout       = 10 * time.Second
	DefaultMaxReconnectAttempts = 3
	DefaultReconnectDelay       = time.Second
)

// SessionConfig holds configuration for a Session.
type SessionConfig struct {
	// Tokens provides a fresh socket URL for every (re)connect.
	Tokens TokenSource
	// ConnectTimeout bounds the Connecting state. Default 10s.
	ConnectTimeout time.Duration
	// MaxReconnectAttempts bounds consecutive reconnects after abnormal
	// closes. Default 3.
	MaxReconnectAttempts int
	// ReconnectDelay is the linear backoff base: attempt n waits
	// n * ReconnectDelay. Default 1s.
	ReconnectDelay time.Duration
}

// Session is a single-use transcription session. It owns the socket
// exclusively between Start and Stop; create a new Session to restart
// after it has closed.
type Session struct {
	cfg SessionConfig

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	attempts   int
	wantActive bool
	timer      *time.Timer
	ctx        context.Context
	cancel     context.CancelFunc

	events  chan Event
	errs    chan error
	ended   chan struct{}
	endOnce sync.Once
}

// NewSession creates a session in the Idle state.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("recognition: token source required")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}

	return &Session{
		cfg:    cfg,
		events: make(chan Event, 64),
		errs:   make(chan error, 8),
		ended:  make(chan struct{}),
	}, nil
}

// Start transitions Idle → Connecting → Open. It fails with
// ErrAlreadyRunning unless the session is Idle, with a *TokenError if
// credentials cannot be obtained, with ErrConnectTimeout if Open is
// not reached in time, and with ErrStopped if Stop won a race against
// the connection attempt; on a connect failure the session returns to
// Idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyRunning, state)
	}
	s.state = StateConnecting
	s.wantActive = true
	// The session outlives the Start call; its context ends at Stop,
	// not at the caller's start deadline.
	s.ctx, s.cancel = context.WithCancel(context.Background())
	sctx := s.ctx
	s.mu.Unlock()

	conn, err := s.connect(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.wantActive = false
		cancel := s.cancel
		s.cancel = nil
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return err
	}

	s.mu.Lock()
	if !s.wantActive {
		// Stopped while connecting; release the fresh socket. The
		// caller must not believe it holds an open session.
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "stopped")
		return ErrStopped
	}
	s.conn = conn
	s.state = StateOpen
	s.attempts = 0
	s.mu.Unlock()

	metrics.SessionConnects.Inc()
	slog.Info("recognition socket open")

	go s.readLoop(sctx, conn)
	return nil
}

// connect acquires a fresh URL and dials it within the connect timeout.
func (s *Session) connect(ctx context.Context) (*websocket.Conn, error) {
	socketURL, err := s.cfg.Tokens.SocketURL(ctx)
	if err != nil {
		var terr *TokenError
		if errors.As(err, &terr) {
			return nil, err
		}
		return nil, &TokenError{Err: err}
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, socketURL, nil)
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrConnectTimeout, s.cfg.ConnectTimeout)
		}
		return nil, fmt.Errorf("dial recognition socket: %w", err)
	}
	return conn, nil
}

// SendAudio transmits one encoded PCM16 frame. Frames are accepted only
// while the socket is Open; otherwise ErrNotOpen is returned and the
// frame is counted as dropped.
func (s *Session) SendAudio(ctx context.Context, chunk []byte) error {
	s.mu.Lock()
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || conn == nil {
		metrics.FramesDropped.Inc()
		return ErrNotOpen
	}

	if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
		return fmt.Errorf("send audio frame: %w", err)
	}
	metrics.FramesSent.Inc()
	return nil
}

// Events returns the transcript event stream, in arrival order.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Errors returns non-fatal session errors (reconnects in progress).
func (s *Session) Errors() <-chan error {
	return s.errs
}

// Ended is closed exactly once when the session reaches Closed, whether
// by Stop, server termination, or exhausted reconnect attempts.
func (s *Session) Ended() <-chan struct{} {
	return s.ended
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReconnectAttempts returns the abnormal-close counter since the last
// successful open. Diagnostic only.
func (s *Session) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Stop ends the session from any non-Idle state: it sends an explicit
// termination signal if Open, cancels any pending reconnect, closes the
// socket, and transitions to Closed. Returns false as a no-op when the
// session is Idle or already Closed.
func (s *Session) Stop() bool {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosing
	s.wantActive = false
	conn := s.conn
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	// Each cleanup step is guarded so a missing resource doesn't
	// prevent releasing the rest.
	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := conn.Write(ctx, websocket.MessageText, encodeTerminate()); err != nil {
			slog.Debug("terminate signal not delivered", "error", err)
		}
		cancel()
	}

	s.finish()
	return true
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.handleDisconnect(err)
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			var unknown *UnknownMessageError
			if errors.As(err, &unknown) {
				slog.Warn("ignoring unknown recognition message", "type", unknown.Type)
			} else {
				slog.Warn("malformed recognition message", "error", err)
			}
			continue
		}

		switch m := msg.(type) {
		case Begin:
			slog.Info("recognition session began", "session_id", m.ID)
		case Turn:
			if m.Transcript == "" {
				continue
			}
			kind := types.TranscriptInterim
			if m.Final() {
				kind = types.TranscriptFinal
			}
			s.emit(ctx, Event{Kind: kind, Text: m.Transcript, Confidence: m.EndOfTurnConfidence})
			metrics.Transcripts.WithLabelValues(string(kind)).Inc()
		case Termination:
			slog.Info("recognition session terminated by server",
				"audio_duration_s", m.AudioDurationSeconds)
			s.finish()
			return
		}
	}
}

// handleDisconnect decides between reconnecting and closing after the
// read loop fails. A normal close code or an exhausted attempt budget
// ends the session; an abnormal close schedules one reconnect with
// linear backoff. Audio capture is untouched either way: only the
// transport is re-established.
func (s *Session) handleDisconnect(err error) {
	s.mu.Lock()
	if !s.wantActive || s.state == StateClosed {
		s.mu.Unlock()
		return
	}

	normal := websocket.CloseStatus(err) == websocket.StatusNormalClosure
	if normal || s.attempts >= s.cfg.MaxReconnectAttempts {
		s.mu.Unlock()
		if !normal {
			s.emitErr(fmt.Errorf("giving up after %d reconnect attempts: %w",
				s.cfg.MaxReconnectAttempts, err))
		}
		s.finish()
		return
	}

	s.attempts++
	attempt := s.attempts
	s.state = StateConnecting
	s.conn = nil
	delay := time.Duration(attempt) * s.cfg.ReconnectDelay
	sctx := s.ctx
	s.timer = time.AfterFunc(delay, func() { s.reconnect(sctx) })
	s.mu.Unlock()

	metrics.SessionReconnects.Inc()
	slog.Warn("recognition socket closed abnormally, reconnecting",
		"attempt", attempt, "delay", delay, "error", err)
}

// reconnect re-establishes the transport after an abnormal close.
func (s *Session) reconnect(ctx context.Context) {
	conn, err := s.connect(ctx)
	if err != nil {
		s.mu.Lock()
		if !s.wantActive || s.state == StateClosed {
			s.mu.Unlock()
			return
		}
		if s.attempts >= s.cfg.MaxReconnectAttempts {
			s.mu.Unlock()
			s.emitErr(fmt.Errorf("giving up after %d reconnect attempts: %w",
				s.cfg.MaxReconnectAttempts, err))
			s.finish()
			return
		}
		s.attempts++
		attempt := s.attempts
		delay := time.Duration(attempt) * s.cfg.ReconnectDelay
		s.timer = time.AfterFunc(delay, func() { s.reconnect(ctx) })
		s.mu.Unlock()

		metrics.SessionReconnects.Inc()
		slog.Warn("reconnect failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		return
	}

	s.mu.Lock()
	if !s.wantActive {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "stopped")
		return
	}
	s.conn = conn
	s.state = StateOpen
	s.attempts = 0
	s.mu.Unlock()

	metrics.SessionConnects.Inc()
	slog.Info("recognition socket reopened")
	go s.readLoop(ctx, conn)
}

// finish transitions to Closed and releases remaining resources. Safe
// to call multiple times and from any goroutine.
func (s *Session) finish() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.wantActive = false
	conn := s.conn
	s.conn = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "session ended")
	}
	if cancel != nil {
		cancel()
	}
	s.endOnce.Do(func() { close(s.ended) })
}

// emit delivers a transcript event. Interim events are droppable under
// backpressure; final events carry text that exists nowhere else, so
// they block until the consumer catches up or the session ends.
func (s *Session) emit(ctx context.Context, ev Event) {
	if ev.Kind == types.TranscriptFinal {
		select {
		case s.events <- ev:
		case <-ctx.Done():
		}
		return
	}
	select {
	case s.events <- ev:
	default:
		slog.Warn("event channel full, dropping transcript", "kind", ev.Kind)
	}
}

func (s *Session) emitErr(err error) {
	select {
	case s.errs <- err:
	default:
	}
}
