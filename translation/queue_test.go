package translation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"
)

// scriptedClient answers each Translate call with the next scripted
// error, then echoes texts with a "t:" prefix. If gate is set, the
// first call blocks until the gate closes, which lets tests accumulate
// submissions before the first real batch is formed.
type scriptedClient struct {
	mu      sync.Mutex
	gate    chan struct{}
	script  []error
	respond func(texts []string) ([]Result, error)
	calls   [][]string
}

func (c *scriptedClient) Translate(_ context.Context, texts []string, _, _ string) ([]Result, error) {
	c.mu.Lock()
	gate := c.gate
	c.gate = nil
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	copied := make([]string, len(texts))
	copy(copied, texts)
	c.calls = append(c.calls, copied)

	var err error
	if len(c.script) > 0 {
		err = c.script[0]
		c.script = c.script[1:]
	}
	respond := c.respond
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if respond != nil {
		return respond(texts)
	}
	results := make([]Result, len(texts))
	for i, t := range texts {
		results[i] = Result{Text: "t:" + t, DetectedSourceLang: "EN"}
	}
	return results, nil
}

func (c *scriptedClient) snapshot() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]string, len(c.calls))
	copy(out, c.calls)
	return out
}

func newTestQueue(t *testing.T, client Client) *Queue {
	t.Helper()
	q, err := NewQueue(QueueConfig{
		Client:          client,
		RetryDelay:      10 * time.Millisecond,
		InterBatchDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	t.Cleanup(q.Close)
	return q
}

// primeQueue parks the worker on a sentinel request so the test can
// submit a full load before any real batch is dispatched. The returned
// release func unblocks the worker. The sentinel occupies calls[0].
func primeQueue(t *testing.T, q *Queue, client *scriptedClient) (release func()) {
	t.Helper()
	gate := make(chan struct{})
	client.mu.Lock()
	client.gate = gate
	client.mu.Unlock()
	ch := q.Submit("sentinel", "XX", "")
	return func() {
		close(gate)
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatal("sentinel never resolved")
		}
	}
}

func collect(t *testing.T, chans []<-chan Outcome) []Outcome {
	t.Helper()
	outcomes := make([]Outcome, len(chans))
	for i, ch := range chans {
		select {
		case outcomes[i] = <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("request %d never resolved", i)
		}
	}
	return outcomes
}

func TestBatchSplitPreservesOrder(t *testing.T) {
	client := &scriptedClient{}
	q := newTestQueue(t, client)
	release := primeQueue(t, q, client)

	var chans []<-chan Outcome
	for i := 0; i < 12; i++ {
		chans = append(chans, q.Submit(fmt.Sprintf("line-%02d", i), "DE", "EN"))
	}
	release()

	outcomes := collect(t, chans)
	for i, out := range outcomes {
		if out.Err != nil {
			t.Fatalf("request %d: %v", i, out.Err)
		}
		want := fmt.Sprintf("t:line-%02d", i)
		if out.Text != want {
			t.Errorf("request %d: text = %q, want %q", i, out.Text, want)
		}
	}

	calls := client.snapshot()
	if len(calls) != 3 {
		t.Fatalf("calls = %d, want 3 (sentinel + two batches)", len(calls))
	}
	// 12 requests share one language pair: 10 then 2.
	if len(calls[1]) != 10 || len(calls[2]) != 2 {
		t.Errorf("batch sizes = %d, %d, want 10, 2", len(calls[1]), len(calls[2]))
	}
	if calls[1][0] != "line-00" || calls[2][0] != "line-10" {
		t.Errorf("batch contents out of order: %v | %v", calls[1], calls[2])
	}
}

func TestRetryableFailureRetriesWithoutLoss(t *testing.T) {
	client := &scriptedClient{script: []error{
		nil, // sentinel
		&APIError{StatusCode: http.StatusTooManyRequests, Body: "slow down"},
	}}
	q := newTestQueue(t, client)
	release := primeQueue(t, q, client)

	var chans []<-chan Outcome
	for i := 0; i < 3; i++ {
		chans = append(chans, q.Submit(fmt.Sprintf("r%d", i), "DE", ""))
	}
	release()

	for i, out := range collect(t, chans) {
		if out.Err != nil {
			t.Fatalf("request %d rejected: %v", i, out.Err)
		}
	}

	calls := client.snapshot()
	if len(calls) != 3 {
		t.Fatalf("calls = %d, want 3 (sentinel, failure, retry)", len(calls))
	}
	// The retried batch is byte-for-byte the failed one: nothing lost,
	// nothing duplicated, order kept.
	if len(calls[1]) != len(calls[2]) {
		t.Fatalf("retry size %d != original %d", len(calls[2]), len(calls[1]))
	}
	for i := range calls[1] {
		if calls[1][i] != calls[2][i] {
			t.Errorf("retry diverged at %d: %q vs %q", i, calls[1][i], calls[2][i])
		}
	}

	// Exactly-once: no second outcome ever arrives.
	select {
	case out := <-chans[0]:
		t.Errorf("request 0 resolved twice: %+v", out)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNonRetryableFailureRejectsBatch(t *testing.T) {
	client := &scriptedClient{script: []error{
		nil, // sentinel
		&APIError{StatusCode: http.StatusForbidden, Body: "bad key"},
	}}
	q := newTestQueue(t, client)
	release := primeQueue(t, q, client)

	chans := []<-chan Outcome{
		q.Submit("a", "DE", ""),
		q.Submit("b", "DE", ""),
	}
	release()

	for i, out := range collect(t, chans) {
		var apiErr *APIError
		if !errors.As(out.Err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
			t.Errorf("request %d: err = %v, want 403 APIError", i, out.Err)
		}
	}

	time.Sleep(30 * time.Millisecond)
	if calls := client.snapshot(); len(calls) != 2 {
		t.Errorf("calls = %d, want 2 (no retry on 403)", len(calls))
	}
}

func TestLengthMismatchRejectsBatch(t *testing.T) {
	client := &scriptedClient{
		respond: func(texts []string) ([]Result, error) {
			return []Result{{Text: "only one"}}, nil
		},
	}
	q := newTestQueue(t, client)
	release := primeQueue(t, q, client)

	chans := []<-chan Outcome{
		q.Submit("a", "DE", ""),
		q.Submit("b", "DE", ""),
	}
	release()

	for i, out := range collect(t, chans) {
		if out.Err == nil {
			t.Errorf("request %d: expected mismatch error", i)
		}
	}

	time.Sleep(30 * time.Millisecond)
	if calls := client.snapshot(); len(calls) != 2 {
		t.Errorf("calls = %d, want 2 (mismatch is not retried)", len(calls))
	}
}

func TestCrossLanguagePairDeferred(t *testing.T) {
	client := &scriptedClient{}
	q := newTestQueue(t, client)
	release := primeQueue(t, q, client)

	chans := []<-chan Outcome{
		q.Submit("a", "DE", ""),
		q.Submit("b", "DE", ""),
		q.Submit("c", "FR", ""),
		q.Submit("d", "DE", ""),
	}
	release()
	collect(t, chans)

	calls := client.snapshot()
	if len(calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(calls))
	}
	// The first drain collects everything matching the head's pair; the
	// FR request waits its turn but is not starved.
	wantFirst := []string{"a", "b", "d"}
	if len(calls[1]) != len(wantFirst) {
		t.Fatalf("first batch = %v, want %v", calls[1], wantFirst)
	}
	for i, w := range wantFirst {
		if calls[1][i] != w {
			t.Errorf("first batch = %v, want %v", calls[1], wantFirst)
			break
		}
	}
	if len(calls[2]) != 1 || calls[2][0] != "c" {
		t.Errorf("second batch = %v, want [c]", calls[2])
	}
}

func TestSubmitAfterClose(t *testing.T) {
	q := newTestQueue(t, &scriptedClient{})
	q.Close()

	out := <-q.Submit("late", "DE", "")
	if !errors.Is(out.Err, ErrQueueClosed) {
		t.Errorf("err = %v, want ErrQueueClosed", out.Err)
	}
}

func TestCloseRejectsPending(t *testing.T) {
	client := &scriptedClient{}
	q := newTestQueue(t, client)
	release := primeQueue(t, q, client)

	ch := q.Submit("waiting", "DE", "")
	q.Close()
	release()

	select {
	case out := <-ch:
		if !errors.Is(out.Err, ErrQueueClosed) {
			t.Errorf("err = %v, want ErrQueueClosed", out.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pending request never rejected")
	}
}

func TestTranslateBlocking(t *testing.T) {
	q := newTestQueue(t, &scriptedClient{})

	res, err := q.Translate(context.Background(), "hello", "DE", "EN")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Text != "t:hello" {
		t.Errorf("text = %q", res.Text)
	}
}
