package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/obiente/translate/scribe/internal/report"
)

func TestRegistryConnectErrors(t *testing.T) {
	h := newHarness(t, &echoRecognizer{})
	if _, err := h.reg.Connect("c1", &recordingEmitter{}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if _, err := h.reg.Connect("c1", &recordingEmitter{}); !errors.Is(err, ErrSessionExists) {
		t.Errorf("Expected ErrSessionExists, got %v", err)
	}
	if err := h.reg.Start("unknown"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
	if err := h.reg.Feed("unknown", []byte("x")); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
	h.reg.Stop("unknown")
}

func TestRegistryDisconnectStopsSession(t *testing.T) {
	h := newHarness(t, &echoRecognizer{})
	em := &recordingEmitter{}
	s, _ := h.reg.Connect("c1", em)
	h.reg.Start("c1")
	h.reg.Feed("c1", []byte("goodbye"))

	h.reg.Disconnect("c1")
	if err := waitClosed(t, s); err != nil {
		t.Fatalf("Expected clean close, got %v", err)
	}
	if h.reg.Len() != 0 {
		t.Errorf("Expected no live sessions, got %d", h.reg.Len())
	}
	if got := readReport(t, h.store, s.Report()); got != "goodbye" {
		t.Errorf("Expected report %q, got %q", "goodbye", got)
	}
	if err := h.reg.Start("c1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession after disconnect, got %v", err)
	}
}

func TestRegistryRestartAfterClose(t *testing.T) {
	h := newHarness(t, &echoRecognizer{})
	first, _ := h.reg.Connect("c1", &recordingEmitter{})
	h.reg.Start("c1")
	h.reg.Stop("c1")
	waitClosed(t, first)

	if err := h.reg.Start("c1"); err != nil {
		t.Fatalf("Expected a fresh session, got %v", err)
	}
	second, ok := h.reg.Get("c1")
	if !ok || second == first {
		t.Fatal("Expected a new session for the connection")
	}
	if second.State() != StateStreaming {
		t.Errorf("Expected streaming, got %s", second.State())
	}
	h.reg.Stop("c1")
	waitClosed(t, second)
	if h.rec.Calls() != 2 {
		t.Errorf("Expected two backend streams, got %d", h.rec.Calls())
	}
}

func TestRegistryIsolatesSessions(t *testing.T) {
	h := newHarness(t, &echoRecognizer{})
	const n = 8

	sessions := make([]*Session, n)
	for i := range sessions {
		id := fmt.Sprintf("conn%d", i)
		s, err := h.reg.Connect(id, &recordingEmitter{})
		if err != nil {
			t.Fatalf("Connect %s failed: %v", id, err)
		}
		sessions[i] = s
		h.reg.Start(id)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn%d", i)
			for j := 0; j < 5; j++ {
				h.reg.Feed(id, []byte(fmt.Sprintf("%s-%d", id, j)))
			}
			h.reg.Stop(id)
		}(i)
	}
	wg.Wait()

	for i, s := range sessions {
		waitClosed(t, s)
		id := fmt.Sprintf("conn%d", i)
		want := fmt.Sprintf("%[1]s-0\n%[1]s-1\n%[1]s-2\n%[1]s-3\n%[1]s-4", id)
		if got := readReport(t, h.store, report.Name(testNow, id)); got != want {
			t.Errorf("Report for %s:\n got  %q\n want %q", id, got, want)
		}
	}
}

func TestRegistryShutdownDrains(t *testing.T) {
	h := newHarness(t, &echoRecognizer{})
	s, _ := h.reg.Connect("c1", &recordingEmitter{})
	h.reg.Start("c1")
	h.reg.Feed("c1", []byte("flushed"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.reg.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("Expected closed after shutdown, got %s", s.State())
	}
	if got := readReport(t, h.store, s.Report()); got != "flushed" {
		t.Errorf("Expected report %q, got %q", "flushed", got)
	}
	if _, err := h.reg.Connect("c2", &recordingEmitter{}); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Expected ErrShuttingDown, got %v", err)
	}
}

func TestRegistryShutdownTimeoutCancelsStreams(t *testing.T) {
	h := newHarness(t, &echoRecognizer{hold: true})
	em := &recordingEmitter{}
	s, _ := h.reg.Connect("c1", em)
	h.reg.Start("c1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := h.reg.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded, got %v", err)
	}

	err := waitClosed(t, s)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected cancelled stream, got %v", err)
	}
}
