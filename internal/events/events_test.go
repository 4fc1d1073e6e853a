package events

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleSinkNarratesSteps(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf)

	s.Publish(New("login", KindStarted, "TOTP login"))
	s.Publish(New("login", KindRetry, "upstream unavailable", "attempt", 2))
	s.Publish(New("validate", KindStarted, "MPIN validate"))
	s.Publish(New("place_order", KindFailed, "rejected", "code", "1009", "http", 200))

	out := buf.String()
	assert.Contains(t, out, "Step 1: TOTP login...\n")
	assert.Contains(t, out, "  retry: upstream unavailable (attempt=2)\n")
	assert.Contains(t, out, "Step 2: MPIN validate...\n")
	assert.Contains(t, out, "  FAILED: rejected (code=1009, http=200)\n")
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi{a, nil, b}.Publish(New("login", KindSucceeded, "ok"))

	assert.Equal(t, 1, a.Count("login", KindSucceeded))
	assert.Equal(t, 1, b.Count("login", KindSucceeded))
	assert.Zero(t, a.Count("validate", KindSucceeded))
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	s := LogSink{Logger: l}

	s.Publish(New("login", KindStarted, "hidden at info"))
	s.Publish(New("login", KindFailed, "auth rejected", "status", 401))

	out := buf.String()
	assert.NotContains(t, out, "hidden at info")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "status=401")
	assert.Contains(t, out, "phase=login")
}

func TestOrDiscard(t *testing.T) {
	assert.NotPanics(t, func() { OrDiscard(nil).Publish(New("login", KindInfo, "dropped")) })
	r := &Recorder{}
	assert.Equal(t, Sink(r), OrDiscard(r))

	var typedNil *Recorder
	assert.NotPanics(t, func() { OrDiscard(typedNil).Publish(New("login", KindInfo, "dropped")) })
}
