// Package types provides shared type definitions for the pipeline.
package types

// SourceKind identifies which audio backend a capture session acquired.
type SourceKind string

const (
	// SourceTab is loopback capture of system/tab output audio.
	SourceTab SourceKind = "tab"
	// SourceMicrophone is microphone capture, used as fallback.
	SourceMicrophone SourceKind = "microphone"
)

// TranscriptKind distinguishes partial from stable recognition results.
type TranscriptKind string

const (
	// TranscriptInterim is a partial result that may still change.
	TranscriptInterim TranscriptKind = "interim"
	// TranscriptFinal is a formatted end-of-turn result.
	TranscriptFinal TranscriptKind = "final"
)

// ─────────────────────────────────────────────────────────────────────────────
// Consumer-facing events
// ─────────────────────────────────────────────────────────────────────────────

// TranscriptEvent is a recognition result tagged with a correlation id
// so the eventual translation can be matched back to its transcript line.
type TranscriptEvent struct {
	CorrelationID string         `json:"correlationId"`
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	Confidence    float64        `json:"confidence"`
	SourceLang    string         `json:"sourceLang,omitempty"` // detected, best effort
	Timestamp     int64          `json:"timestamp"`            // Unix milliseconds
}

// TranslationEvent carries the translation for a final transcript line,
// or the error that permanently failed it. Exactly one of Text/Err is set.
type TranslationEvent struct {
	CorrelationID string `json:"correlationId"`
	Text          string `json:"text,omitempty"`
	Err           string `json:"error,omitempty"`
}

// ErrorKind classifies pipeline errors for consumers.
type ErrorKind string

const (
	ErrorAcquisition ErrorKind = "acquisition" // no device or permission denied
	ErrorToken       ErrorKind = "token"       // credential/config issue
	ErrorTransport   ErrorKind = "transport"   // socket failure after retries
	ErrorTranslation ErrorKind = "translation" // non-retryable translation failure
)

// PipelineError is a consumer-visible error notification.
type PipelineError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// PipelineStatus is a point-in-time snapshot of the pipeline.
type PipelineStatus struct {
	Active          bool       `json:"active"`
	Source          SourceKind `json:"source,omitempty"`
	TargetLang      string     `json:"targetLang"`
	SourceLang      string     `json:"sourceLang,omitempty"`
	Duration        int64      `json:"duration"` // running duration in seconds
	TranscriptCount int        `json:"transcriptCount"`
}
