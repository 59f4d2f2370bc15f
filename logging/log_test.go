package logging

import (
	"sync"
	"testing"

	"go.uber.org/zap"
)

type captureSink struct {
	mu      sync.Mutex
	records []Record
}

func (c *captureSink) Write(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

func (c *captureSink) all() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

func withCapture(t *testing.T) *captureSink {
	t.Helper()
	prevLevel := CurrentLevel()
	cap := &captureSink{}
	SetSink(cap)
	t.Cleanup(func() {
		SetLevel(prevLevel)
		var s Sink = NewZapSink(zap.NewProductionConfig())
		SetSink(s)
	})
	return cap
}

func TestLevelFiltering(t *testing.T) {
	cap := withCapture(t)
	SetLevel(LevelWarning)

	Debug("should be dropped")
	Info("should be dropped too")
	Warning("kept")
	Error("kept too")

	got := cap.all()
	if len(got) != 2 {
		t.Fatalf("expected 2 records to pass the Warning threshold, got %d", len(got))
	}
	if got[0].Level != LevelWarning || got[1].Level != LevelError {
		t.Fatalf("unexpected levels: %v %v", got[0].Level, got[1].Level)
	}
}

func TestThreadTag(t *testing.T) {
	cap := withCapture(t)
	SetLevel(LevelDebug)

	done := make(chan struct{})
	go func() {
		defer close(done)
		SetThreadTag("worker-1")
		Info("hello")
	}()
	<-done

	got := cap.all()
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Tag != "worker-1" {
		t.Fatalf("expected tag worker-1, got %q", got[0].Tag)
	}
}

func TestFormatOneNeverPanics(t *testing.T) {
	cap := withCapture(t)
	SetLevel(LevelDebug)

	var badStringer *panickyStringer
	Info("value:", badStringer)

	got := cap.all()
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
}

type panickyStringer struct{}

func (p *panickyStringer) String() string {
	panic("boom")
}
