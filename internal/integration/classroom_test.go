package integration

import (
	"net/http"
	"testing"

	"roomsync/internal/api"
	"roomsync/internal/relaytest"
	"roomsync/pkg/types"
)

func startClassroom(t *testing.T) (*relaytest.Relay, *Participant, *Participant, *Participant) {
	t.Helper()
	relay := relaytest.New(t, relaytest.WithEcho(types.MessageTypePause, types.MessageTypeWarning))

	moderator := StartParticipant(t, relay.URL(), "Alice Martin", true)
	bob := StartParticipant(t, relay.URL(), "Bob Durand", false)
	carol := StartParticipant(t, relay.URL(), "Carol Petit", false)

	relay.WaitForPeers(t, 3, waitTimeout)
	relay.WaitForFrames(t, types.MessageTypeRegister, 3, waitTimeout)
	return relay, moderator, bob, carol
}

// FUNCTIONAL VALIDATION TEST: a pause announced by the moderator reaches every participant
func TestClassroom_PauseReachesEveryone(t *testing.T) {
	_, moderator, bob, carol := startClassroom(t)

	// STEP 1: Students cannot announce
	if code := bob.Call(t, "POST", "/api/pause", api.PauseRequest{Minutes: 5}, nil); code != http.StatusForbidden {
		t.Fatalf("Expected 403 for a student announcement, got %d", code)
	}

	// STEP 2: Moderator announces
	if code := moderator.Call(t, "POST", "/api/pause", api.PauseRequest{Minutes: 10, Reason: "Pause café"}, nil); code != http.StatusCreated {
		t.Fatalf("Expected 201 for the announcement, got %d", code)
	}

	for _, p := range []*Participant{moderator, bob, carol} {
		p := p
		Eventually(t, p.Name+" sees the pause", func() bool {
			var resp api.PauseResponse
			p.Call(t, "GET", "/api/pause", nil, &resp)
			return resp.Active && resp.Pause.Duration == 10 && resp.Pause.Reason == "Pause café"
		})
	}

	// STEP 3: Moderator stops early and every overlay gets a pause_ended event
	if code := moderator.Call(t, "DELETE", "/api/pause", nil, nil); code >= http.StatusMultipleChoices {
		t.Fatalf("Expected the stop to succeed, got %d", code)
	}
	for _, p := range []*Participant{bob, carol} {
		p := p
		Eventually(t, p.Name+" sees the pause end", func() bool {
			var events []types.Event
			p.Call(t, "GET", "/api/events", nil, &events)
			for _, e := range events {
				if e.Kind == types.EventPauseEnded {
					return true
				}
			}
			return false
		})
	}
}

// FUNCTIONAL VALIDATION TEST: reports from several students aggregate into one moderator alert
func TestClassroom_WarningsAggregateOnModerator(t *testing.T) {
	_, moderator, bob, carol := startClassroom(t)

	for _, p := range []*Participant{bob, carol} {
		if code := p.Call(t, "POST", "/api/warnings", api.WarningRequest{ProblemType: "audio"}, nil); code != http.StatusCreated {
			t.Fatalf("Expected 201 for %s's report, got %d", p.Name, code)
		}
	}

	Eventually(t, "two reporters on the moderator alert", func() bool {
		var resp api.WarningsResponse
		moderator.Call(t, "GET", "/api/warnings", nil, &resp)
		return len(resp.Alerts) == 1 && resp.Alerts[0].Count == 2
	})

	// Students never see alerts
	var studentView api.WarningsResponse
	bob.Call(t, "GET", "/api/warnings", nil, &studentView)
	if len(studentView.Alerts) != 0 {
		t.Errorf("Expected no alerts on a student, got %d", len(studentView.Alerts))
	}

	// Resolving dismisses the alert locally
	if code := moderator.Call(t, "POST", "/api/warnings/audio/resolve", nil, nil); code != http.StatusNoContent {
		t.Fatalf("Expected 204 for resolve, got %d", code)
	}
	var after api.WarningsResponse
	moderator.Call(t, "GET", "/api/warnings", nil, &after)
	if len(after.Alerts) != 0 {
		t.Errorf("Expected the alert to be gone after resolve, got %d", len(after.Alerts))
	}
}

// FUNCTIONAL VALIDATION TEST: a departing participant unregisters and the others keep running
func TestClassroom_Departure(t *testing.T) {
	relay, moderator, bob, _ := startClassroom(t)

	bob.Stop()
	relay.WaitForFrames(t, types.MessageTypeUnregister, 1, waitTimeout)
	relay.WaitForPeers(t, 2, waitTimeout)

	relay.BroadcastRaw(`{"type":"userLists","users":["Alice Martin","Carol Petit"]}`)
	Eventually(t, "moderator presence updated", func() bool {
		var resp api.PresenceResponse
		moderator.Call(t, "GET", "/api/presence", nil, &resp)
		return len(resp.Users) == 2
	})
}
