package client

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitAssistIdle blocks until the in-flight AI operation has finished. The
// busy flag is dropped after the completion is written, so once it reads
// false the output buffer is settled.
func waitAssistIdle(t *testing.T, a *App) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for a.aiBusy.Load() {
		if time.Now().After(deadline) {
			t.Fatal("assistant never went idle")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunAssistRefusesSecondCall(t *testing.T) {
	var buf bytes.Buffer
	a := &App{out: &buf}
	gen := a.chatGen.Add(1)

	release := make(chan struct{})
	a.runAssist(context.Background(), gen, "Summary", func(ctx context.Context) (string, error) {
		<-release
		return "the room talked about cats", nil
	})
	a.runAssist(context.Background(), gen, "Summary", func(ctx context.Context) (string, error) {
		t.Error("second operation ran while the first was still in flight")
		return "", nil
	})

	close(release)
	waitAssistIdle(t, a)

	out := buf.String()
	assert.Contains(t, out, "The assistant is already working on something.")
	assert.Contains(t, out, "Summary: the room talked about cats")
}

func TestRunAssistDropsStaleCompletion(t *testing.T) {
	var buf bytes.Buffer
	a := &App{out: &buf}
	gen := a.chatGen.Add(1)

	release := make(chan struct{})
	a.runAssist(context.Background(), gen, "Suggestion", func(ctx context.Context) (string, error) {
		<-release
		return "sounds good to me", nil
	})

	// Leaving the chat screen advances the generation; the completion that
	// was asked for there must land silently.
	a.chatGen.Add(1)
	close(release)
	waitAssistIdle(t, a)

	assert.Empty(t, buf.String())

	// And the slot is free again for the next screen's requests.
	gen = a.chatGen.Add(1)
	a.runAssist(context.Background(), gen, "Summary", func(ctx context.Context) (string, error) {
		return "fresh", nil
	})
	waitAssistIdle(t, a)
	assert.Contains(t, buf.String(), "Summary: fresh")
}

func TestRunAssistReportsFailure(t *testing.T) {
	var buf bytes.Buffer
	a := &App{out: &buf}
	gen := a.chatGen.Add(1)

	a.runAssist(context.Background(), gen, "Summary", func(ctx context.Context) (string, error) {
		return "", errors.New("model fell over")
	})
	waitAssistIdle(t, a)

	require.Contains(t, buf.String(), "The assistant is unavailable right now.")
	assert.NotContains(t, buf.String(), "model fell over")
}
