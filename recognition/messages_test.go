package recognition

import (
	"errors"
	"testing"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string // expected message type, "" for unknown
	}{
		{"begin", `{"type":"Begin","id":"abc","expires_at":1700000000}`, "Begin"},
		{"turn_interim", `{"type":"Turn","transcript":"hello wor","turn_is_formatted":false,"end_of_turn":false}`, "Turn"},
		{"turn_final", `{"type":"Turn","transcript":"Hello world.","turn_is_formatted":true,"end_of_turn":true,"end_of_turn_confidence":0.94}`, "Turn"},
		{"termination", `{"type":"Termination","audio_duration_seconds":12.5}`, "Termination"},
		{"unknown", `{"type":"Heartbeat"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.data))

			if tt.want == "" {
				var unknown *UnknownMessageError
				if !errors.As(err, &unknown) {
					t.Fatalf("expected UnknownMessageError, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseMessage: %v", err)
			}
			if got := msg.messageType(); got != tt.want {
				t.Errorf("message type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseMessageMalformed(t *testing.T) {
	if _, err := ParseMessage([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestTurnFinal(t *testing.T) {
	tests := []struct {
		name string
		turn Turn
		want bool
	}{
		{"formatted", Turn{Transcript: "Done.", TurnIsFormatted: true, EndOfTurn: true}, true},
		{"end_without_format", Turn{Transcript: "done", EndOfTurn: true}, false},
		{"partial", Turn{Transcript: "do"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.turn.Final(); got != tt.want {
				t.Errorf("Final() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeTerminate(t *testing.T) {
	if got := string(encodeTerminate()); got != `{"type":"Terminate"}` {
		t.Errorf("encodeTerminate = %s", got)
	}
}
