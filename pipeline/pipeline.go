// Package pipeline wires audio capture, streaming recognition, and the
// translation queue into one coordinator and exposes its event streams
// to external consumers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/60cod/realtime-translator/audiocapture"
	"github.com/60cod/realtime-translator/internal/metrics"
	"github.com/60cod/realtime-translator/internal/types"
	"github.com/60cod/realtime-translator/langdetect"
	"github.com/60cod/realtime-translator/pcm"
	"github.com/60cod/realtime-translator/recognition"
	"github.com/60cod/realtime-translator/translation"
)

// ErrAlreadyRunning is returned by Start while a session is active.
var ErrAlreadyRunning = errors.New("pipeline already running")

// AudioSource is the capture surface the coordinator drives. It is
// satisfied by *audiocapture.Capture.
type AudioSource interface {
	Start() error
	Stop() error
	OnFrame(func(samples []float32))
	Source() types.SourceKind
	SampleRate() int
}

// Config holds configuration for a Coordinator.
type Config struct {
	// Session configures the recognition transport. Session.Tokens is
	// required.
	Session recognition.SessionConfig
	// Client dispatches translation batches. Required.
	Client translation.Client
	// Queue tunes batching and retry behavior; Queue.Client is ignored
	// in favor of Client.
	Queue translation.QueueConfig
	// TargetLang is the translation target. Required.
	TargetLang string
	// SourceLang fixes the source language; empty means detect per line.
	SourceLang string
	// Audio overrides the default capture source.
	Audio AudioSource
}

// Coordinator bridges final transcripts into translation submissions,
// deduplicates repeated finals, and tags every transcript line with a
// correlation id so its eventual translation can be matched back.
//
// A Coordinator may be started and stopped repeatedly; each run uses a
// fresh recognition session. The translation queue outlives individual
// runs so in-flight requests drain to completion across a stop.
type Coordinator struct {
	cfg   Config
	audio AudioSource
	queue *translation.Queue

	transcripts  chan types.TranscriptEvent
	translations chan types.TranslationEvent
	errs         chan types.PipelineError
	outcomes     chan pendingTranslation
	quit         chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup

	mu         sync.RWMutex
	running    bool
	sess       *recognition.Session
	done       chan struct{}
	endOnce    *sync.Once
	startTime  time.Time
	targetLang string
	sourceLang string
	lastFinal  string
	turnID     string
	finals     int
}

// New creates a coordinator. The audio frame callback is registered
// once here; frames only flow while a session is open.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Session.Tokens == nil {
		return nil, errors.New("pipeline: token source required")
	}
	if cfg.Client == nil {
		return nil, errors.New("pipeline: translation client required")
	}
	target, err := translation.NormalizeLang(cfg.TargetLang)
	if err != nil || target == "" {
		return nil, fmt.Errorf("pipeline: invalid target language %q", cfg.TargetLang)
	}
	source, err := translation.NormalizeLang(cfg.SourceLang)
	if err != nil {
		return nil, fmt.Errorf("pipeline: invalid source language %q", cfg.SourceLang)
	}

	audio := cfg.Audio
	if audio == nil {
		capture, err := audiocapture.New(audiocapture.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("create audio capture: %w", err)
		}
		audio = capture
	}

	qcfg := cfg.Queue
	qcfg.Client = cfg.Client
	queue, err := translation.NewQueue(qcfg)
	if err != nil {
		return nil, err
	}

	closedDone := make(chan struct{})
	close(closedDone)

	c := &Coordinator{
		cfg:          cfg,
		audio:        audio,
		queue:        queue,
		transcripts:  make(chan types.TranscriptEvent, 64),
		translations: make(chan types.TranslationEvent, 64),
		errs:         make(chan types.PipelineError, 8),
		outcomes:     make(chan pendingTranslation, 128),
		quit:         make(chan struct{}),
		done:         closedDone,
		targetLang:   target,
		sourceLang:   source,
	}
	c.audio.OnFrame(c.handleFrame)
	go c.translationLoop()
	return c, nil
}

// Start acquires a recognition session and the audio source. It fails
// with ErrAlreadyRunning while a run is active, with a
// *recognition.TokenError for credential failures, and with the capture
// error when no audio backend can be acquired.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	sess, err := recognition.NewSession(c.cfg.Session)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.sess = sess
	c.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		c.mu.Lock()
		c.sess = nil
		c.mu.Unlock()
		return err
	}

	if err := c.audio.Start(); err != nil {
		sess.Stop()
		c.mu.Lock()
		c.sess = nil
		c.mu.Unlock()
		return fmt.Errorf("acquire audio: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.running = true
	c.done = done
	c.endOnce = new(sync.Once)
	c.startTime = time.Now()
	c.lastFinal = ""
	c.turnID = ""
	c.finals = 0
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(sess, done, c.endOnce)

	slog.Info("pipeline started",
		"source", c.audio.Source(),
		"target_lang", c.targetLang)
	return nil
}

// Stop ends the current run: terminates the session, releases the audio
// source, and cancels pending reconnects. It returns false as a no-op
// when nothing is running. In-flight translation requests are not
// cancelled; they drain independently.
func (c *Coordinator) Stop() bool {
	c.mu.Lock()
	sess := c.sess
	running := c.running
	done := c.done
	once := c.endOnce
	c.mu.Unlock()

	if !running || sess == nil {
		return false
	}

	sess.Stop()
	<-sess.Ended()
	c.finish(sess, done, once)
	return true
}

// Close stops the pipeline and shuts down the translation queue,
// rejecting any requests still pending. The outcomes channel is closed
// only after the event pump has exited, so no producer can be blocked
// sending on it.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.Stop()
		c.wg.Wait()
		c.queue.Close()
		close(c.outcomes)
	})
}

// Transcripts streams interim and final recognition results, in arrival
// order, tagged with correlation ids.
func (c *Coordinator) Transcripts() <-chan types.TranscriptEvent {
	return c.transcripts
}

// Translations streams translation results and per-line failures.
func (c *Coordinator) Translations() <-chan types.TranslationEvent {
	return c.translations
}

// Errors streams pipeline error notifications.
func (c *Coordinator) Errors() <-chan types.PipelineError {
	return c.errs
}

// Done returns a channel closed when the current run ends, whether by
// Stop, server termination, or exhausted reconnects.
func (c *Coordinator) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// IsRunning reports whether a run is active.
func (c *Coordinator) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Status returns a point-in-time snapshot.
func (c *Coordinator) Status() types.PipelineStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := types.PipelineStatus{
		Active:     c.running,
		TargetLang: c.targetLang,
		SourceLang: c.sourceLang,
	}
	if c.running {
		st.Source = c.audio.Source()
		st.Duration = int64(time.Since(c.startTime).Seconds())
		st.TranscriptCount = c.finals
	}
	return st
}

// handleFrame encodes one captured frame and ships it to the session.
// Frames arriving while the socket is not open are dropped, never
// queued: the service only accepts live streaming input.
func (c *Coordinator) handleFrame(samples []float32) {
	c.mu.RLock()
	sess := c.sess
	running := c.running
	c.mu.RUnlock()
	if !running || sess == nil {
		return
	}

	chunk := pcm.Encode(samples)
	metrics.BytesEncoded.Add(float64(len(chunk)))

	err := sess.SendAudio(context.Background(), chunk)
	if err != nil && !errors.Is(err, recognition.ErrNotOpen) {
		slog.Debug("send audio", "error", err)
	}
}

// run pumps session events until the session ends.
func (c *Coordinator) run(sess *recognition.Session, done chan struct{}, once *sync.Once) {
	defer c.wg.Done()
	for {
		select {
		case ev := <-sess.Events():
			c.handleTranscript(ev)
		case err := <-sess.Errors():
			c.sendError(types.ErrorTransport, err)
		case <-sess.Ended():
			c.drainEvents(sess)
			c.finish(sess, done, once)
			return
		}
	}
}

// drainEvents flushes transcripts that arrived before the session ended.
func (c *Coordinator) drainEvents(sess *recognition.Session) {
	for {
		select {
		case ev := <-sess.Events():
			c.handleTranscript(ev)
		default:
			return
		}
	}
}

func (c *Coordinator) finish(sess *recognition.Session, done chan struct{}, once *sync.Once) {
	once.Do(func() {
		c.mu.Lock()
		if c.sess == sess {
			c.sess = nil
			c.running = false
		}
		started := c.startTime
		c.mu.Unlock()

		if err := c.audio.Stop(); err != nil {
			slog.Error("stop audio capture", "error", err)
		}
		close(done)
		slog.Info("pipeline ended", "duration", time.Since(started))
	})
}

// handleTranscript tags events with correlation ids and forwards finals
// to the translation queue. Interim events within one turn share the
// final's correlation id. A final whose trimmed text equals the
// immediately preceding final is a duplicate and is dropped before
// submission.
func (c *Coordinator) handleTranscript(ev recognition.Event) {
	c.mu.Lock()

	if c.turnID == "" {
		c.turnID = uuid.NewString()
	}
	id := c.turnID

	if ev.Kind == types.TranscriptInterim {
		c.mu.Unlock()
		c.sendTranscript(types.TranscriptEvent{
			CorrelationID: id,
			Kind:          types.TranscriptInterim,
			Text:          ev.Text,
			Confidence:    ev.Confidence,
			Timestamp:     time.Now().UnixMilli(),
		})
		return
	}

	// Final: the turn is complete either way.
	c.turnID = ""

	trimmed := strings.TrimSpace(ev.Text)
	if trimmed == "" || trimmed == c.lastFinal {
		c.mu.Unlock()
		return
	}
	c.lastFinal = trimmed
	c.finals++
	target := c.targetLang
	source := c.sourceLang
	c.mu.Unlock()

	detected := source
	if detected == "" {
		if code, _ := langdetect.Detect(trimmed); code != "auto" {
			detected = code
		}
	}

	c.sendTranscript(types.TranscriptEvent{
		CorrelationID: id,
		Kind:          types.TranscriptFinal,
		Text:          trimmed,
		Confidence:    ev.Confidence,
		SourceLang:    strings.ToLower(detected),
		Timestamp:     time.Now().UnixMilli(),
	})

	// Text already in the target language passes through untranslated.
	// The pass-through still goes through the outcome loop as a
	// pre-resolved result, so translation events keep submission order
	// even when earlier lines are still in flight.
	if translation.SameLanguage(detected, target) {
		resolved := make(chan translation.Outcome, 1)
		resolved <- translation.Outcome{Text: trimmed}
		c.submit(id, resolved)
		return
	}

	c.submit(id, c.queue.Submit(trimmed, target, source))
}

// submit hands an outcome to the translation loop, giving up when the
// coordinator is closing so the event pump can never deadlock on a
// full outcome buffer.
func (c *Coordinator) submit(id string, outcome <-chan translation.Outcome) {
	select {
	case c.outcomes <- pendingTranslation{id: id, outcome: outcome}:
	case <-c.quit:
	}
}

// pendingTranslation pairs a submitted request with its transcript line.
type pendingTranslation struct {
	id      string
	outcome <-chan translation.Outcome
}

// translationLoop forwards queue outcomes to the consumer one at a
// time, so translation events for a given target language arrive in
// submission order.
func (c *Coordinator) translationLoop() {
	for p := range c.outcomes {
		out := <-p.outcome
		if out.Err != nil {
			c.sendError(types.ErrorTranslation, out.Err)
			c.sendTranslation(types.TranslationEvent{CorrelationID: p.id, Err: out.Err.Error()})
			continue
		}
		c.sendTranslation(types.TranslationEvent{CorrelationID: p.id, Text: out.Text})
	}
}

func (c *Coordinator) sendTranscript(ev types.TranscriptEvent) {
	select {
	case c.transcripts <- ev:
	default:
		// Consumer is behind; drop rather than stall the pipeline.
	}
}

func (c *Coordinator) sendTranslation(ev types.TranslationEvent) {
	select {
	case c.translations <- ev:
	default:
	}
}

func (c *Coordinator) sendError(kind types.ErrorKind, err error) {
	slog.Error("pipeline error", "kind", kind, "error", err)
	select {
	case c.errs <- types.PipelineError{Kind: kind, Message: err.Error()}:
	default:
	}
}
