// Package events carries progress out of the auth and order core. The core
// publishes; loggers and the CLI console subscribe.
package events

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/neogate/internal/pkg/logger"
)

type Kind string

const (
	KindStarted   Kind = "started"
	KindSucceeded Kind = "succeeded"
	KindRetry     Kind = "retry"
	KindFailed    Kind = "failed"
	KindInfo      Kind = "info"
)

type Event struct {
	Phase   string
	Kind    Kind
	Message string
	Attrs   map[string]any
	At      time.Time
}

func New(phase string, kind Kind, msg string, kv ...any) Event {
	e := Event{Phase: phase, Kind: kind, Message: msg, At: time.Now()}
	if len(kv) > 0 {
		e.Attrs = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Attrs[fmt.Sprint(kv[i])] = kv[i+1]
		}
	}
	return e
}

type Sink interface {
	Publish(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans an event out to several sinks, skipping nil ones.
type Multi []Sink

func (m Multi) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

// LogSink writes events as structured log records.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(e Event) {
	l := s.Logger
	if l == nil {
		l = logger.Get()
	}
	args := make([]any, 0, 4+2*len(e.Attrs))
	args = append(args, "phase", e.Phase, "kind", string(e.Kind))
	for _, k := range sortedKeys(e.Attrs) {
		args = append(args, k, e.Attrs[k])
	}
	level := slog.LevelInfo
	switch e.Kind {
	case KindFailed:
		level = slog.LevelError
	case KindRetry:
		level = slog.LevelWarn
	case KindStarted:
		level = slog.LevelDebug
	}
	l.Log(context.Background(), level, e.Message, args...)
}

var stepNumbers = map[string]int{
	"login":       1,
	"validate":    2,
	"place_order": 3,
}

// ConsoleSink narrates the flow for a human at a terminal.
type ConsoleSink struct {
	mu sync.Mutex
	W  io.Writer
}

func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{W: w}
}

func (s *ConsoleSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Kind {
	case KindStarted:
		if n, ok := stepNumbers[e.Phase]; ok {
			fmt.Fprintf(s.W, "Step %d: %s...\n", n, e.Message)
			return
		}
		fmt.Fprintf(s.W, "%s...\n", e.Message)
	case KindSucceeded:
		fmt.Fprintf(s.W, "  ok: %s%s\n", e.Message, formatAttrs(e.Attrs))
	case KindRetry:
		fmt.Fprintf(s.W, "  retry: %s%s\n", e.Message, formatAttrs(e.Attrs))
	case KindFailed:
		fmt.Fprintf(s.W, "  FAILED: %s%s\n", e.Message, formatAttrs(e.Attrs))
	default:
		fmt.Fprintf(s.W, "  %s%s\n", e.Message, formatAttrs(e.Attrs))
	}
}

// Recorder keeps every event. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish on a nil Recorder is a no-op.
func (r *Recorder) Publish(e Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events match phase and kind.
func (r *Recorder) Count(phase string, kind Kind) int {
	n := 0
	for _, e := range r.Events() {
		if e.Phase == phase && e.Kind == kind {
			n++
		}
	}
	return n
}

func formatAttrs(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(" (")
	for i, k := range sortedKeys(attrs) {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, attrs[k])
	}
	b.WriteString(")")
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
