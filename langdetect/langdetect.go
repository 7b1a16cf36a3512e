// Package langdetect identifies the language of transcript text so the
// pipeline can skip translating text already in the target language and
// fill in the source language when the recognizer does not report one.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

var (
	once     sync.Once
	detector lingua.LanguageDetector
)

// candidates keeps the model small: only languages the speech
// recognizer can produce are worth distinguishing.
var candidates = []lingua.Language{
	lingua.English,
	lingua.German,
	lingua.French,
	lingua.Spanish,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Dutch,
	lingua.Russian,
	lingua.Japanese,
	lingua.Korean,
	lingua.Chinese,
}

func get() lingua.LanguageDetector {
	once.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(candidates...).
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}

// Detect returns the ISO 639-1 code and English name of the text's
// language, or ("auto", "Unknown") when the text is too short or
// ambiguous to classify.
func Detect(text string) (code, name string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "auto", "Unknown"
	}

	lang, ok := get().DetectLanguageOf(text)
	if !ok {
		return "auto", "Unknown"
	}
	return strings.ToLower(lang.IsoCode639_1().String()), lang.String()
}
