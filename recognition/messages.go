package recognition

import (
	"encoding/json"
	"fmt"
)

// Inbound protocol messages form a closed set of variants discriminated
// by a "type" field. Unknown variants are reported via ErrUnknownMessage
// so callers can log and ignore them without failing the session.

// Message is an inbound protocol message from the recognition service.
type Message interface {
	messageType() string
}

// Begin is the session handshake. No transcript event is emitted.
type Begin struct {
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

// Turn carries transcript text. A formatted turn is the stable, final
// form of the text; anything earlier is interim.
type Turn struct {
	Transcript          string  `json:"transcript"`
	TurnIsFormatted     bool    `json:"turn_is_formatted"`
	EndOfTurn           bool    `json:"end_of_turn"`
	EndOfTurnConfidence float64 `json:"end_of_turn_confidence"`
}

// Final reports whether this turn is the completed, formatted result.
func (t Turn) Final() bool {
	return t.TurnIsFormatted
}

// Termination is the server-initiated end of the session.
type Termination struct {
	AudioDurationSeconds float64 `json:"audio_duration_seconds"`
}

func (Begin) messageType() string       { return "Begin" }
func (Turn) messageType() string        { return "Turn" }
func (Termination) messageType() string { return "Termination" }

// UnknownMessageError reports a message type outside the known set.
type UnknownMessageError struct {
	Type string
}

func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// ParseMessage decodes an inbound protocol message.
func ParseMessage(data []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch envelope.Type {
	case "Begin":
		var m Begin
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode Begin: %w", err)
		}
		return m, nil
	case "Turn":
		var m Turn
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode Turn: %w", err)
		}
		return m, nil
	case "Termination":
		var m Termination
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode Termination: %w", err)
		}
		return m, nil
	default:
		return nil, &UnknownMessageError{Type: envelope.Type}
	}
}

// terminateMessage is the outbound signal for a clean client-side stop.
type terminateMessage struct {
	Type string `json:"type"`
}

func encodeTerminate() []byte {
	data, _ := json.Marshal(terminateMessage{Type: "Terminate"})
	return data
}
