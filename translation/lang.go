package translation

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLang canonicalizes a user-supplied language code into the
// uppercase form the translation service expects ("en-us" → "EN-US",
// "De" → "DE"). An empty code passes through unchanged: it means "let
// the service detect the source language".
func NormalizeLang(code string) (string, error) {
	if code == "" {
		return "", nil
	}

	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("invalid language code %q: %w", code, err)
	}
	return strings.ToUpper(tag.String()), nil
}

// SameLanguage reports whether two codes refer to the same base
// language, ignoring region ("EN-US" vs "en"). Used to skip translating
// text that is already in the target language.
func SameLanguage(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	baseA, _ := ta.Base()
	baseB, _ := tb.Base()
	return baseA == baseB
}
