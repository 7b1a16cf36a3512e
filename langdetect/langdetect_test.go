package langdetect

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		code string
	}{
		{"english", "The quick brown fox jumps over the lazy dog", "en"},
		{"german", "Der schnelle braune Fuchs springt über den faulen Hund", "de"},
		{"korean", "안녕하세요, 오늘 날씨가 정말 좋네요", "ko"},
		{"empty", "", "auto"},
		{"whitespace", "   \t\n", "auto"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, name := Detect(tt.text)
			if code != tt.code {
				t.Errorf("Detect(%q) code = %q, want %q", tt.text, code, tt.code)
			}
			if code == "auto" && name != "Unknown" {
				t.Errorf("undetected text should name Unknown, got %q", name)
			}
			if code != "auto" && name == "" {
				t.Errorf("detected language missing name")
			}
		})
	}
}
