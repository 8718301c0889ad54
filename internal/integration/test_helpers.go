package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roomsync/internal/app"
	"roomsync/internal/config"
)

const waitTimeout = 5 * time.Second

// Participant is one running roomsync core attached to a shared relay.
type Participant struct {
	Name string
	App  *app.Application

	cancel context.CancelFunc
	done   chan struct{}
}

// StartParticipant runs a core for name against relayURL and stops it with the test.
func StartParticipant(t *testing.T, relayURL, name string, moderator bool) *Participant {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Relay.URL = relayURL
	cfg.Relay.ReconnectDelay = 50 * time.Millisecond
	cfg.Relay.HeartbeatInterval = time.Hour
	cfg.Relay.RegisterInterval = 10 * time.Millisecond
	cfg.API.Enabled = false
	cfg.Reactions.Watch = false

	a, err := app.NewApplication(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Failed to create application for %s: %v", name, err)
	}
	a.Page().Update("Cours de Go", name+" Vous")
	a.Page().SetModerator(moderator)

	ctx, cancel := context.WithCancel(context.Background())
	p := &Participant{Name: name, App: a, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		if err := a.Run(ctx); err != nil {
			t.Logf("%s stopped with error: %v", name, err)
		}
	}()
	t.Cleanup(p.Stop)
	return p
}

// Stop cancels the participant and waits for its cleanup.
func (p *Participant) Stop() {
	p.cancel()
	select {
	case <-p.done:
	case <-time.After(waitTimeout):
	}
}

// Call performs an API request against the participant and decodes a JSON
// response into out when out is non-nil.
func (p *Participant) Call(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	p.App.Handler().ServeHTTP(w, req)

	if out != nil && w.Code < http.StatusMultipleChoices {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("Failed to decode %s %s response: %v", method, path, err)
		}
	}
	return w.Code
}

// Eventually polls cond until it holds or fails the test.
func Eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
