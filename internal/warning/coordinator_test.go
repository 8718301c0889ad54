package warning

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomsync/internal/config"
	"roomsync/internal/identity"
	"roomsync/internal/router"
	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []*types.WarningMessage
}

func (s *recordingSender) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := v.(*types.WarningMessage); ok {
		s.sent = append(s.sent, m)
	}
	return nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	raised    []types.WarningAlert
	updated   []types.WarningAlert
	dismissed []string
}

func (n *recordingNotifier) WarningRaised(a types.WarningAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.raised = append(n.raised, a)
}

func (n *recordingNotifier) WarningUpdated(a types.WarningAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, a)
}

func (n *recordingNotifier) WarningDismissed(problemType string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissed = append(n.dismissed, problemType)
}

type fakeTimer struct {
	delay   time.Duration
	fire    func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	f.stopped = true
	return true
}

type fixture struct {
	c        *Coordinator
	sender   *recordingSender
	notifier *recordingNotifier
	timers   []*fakeTimer
	now      time.Time
	mod      bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sender:   &recordingSender{},
		notifier: &recordingNotifier{},
		now:      time.UnixMilli(1_000 * 120_000),
		mod:      true,
	}
	f.c = NewCoordinator(config.DefaultConfig().Warning, f.sender, identity.NewStatic("Alice", "Cours de Go"),
		interfaces.ModeratorFunc(func() bool { return f.mod }), f.notifier, nil)
	f.c.now = func() time.Time { return f.now }
	f.c.afterFunc = func(d time.Duration, fn func()) stopper {
		timer := &fakeTimer{delay: d, fire: fn}
		f.timers = append(f.timers, timer)
		return timer
	}
	return f
}

func (f *fixture) report(t *testing.T, user, problemType string) {
	t.Helper()
	data := types.WarningData{UserID: user, ProblemType: problemType, Timestamp: f.now.UnixMilli()}
	require.NoError(t, f.c.HandleWarning(types.NewWarningMessage("s", data)))
}

func TestReport_WireShape(t *testing.T) {
	f := newFixture(t)

	data, err := f.c.Report("audio")
	require.NoError(t, err)

	require.Len(t, f.sender.sent, 1)
	msg := f.sender.sent[0]
	assert.Equal(t, types.MessageTypeWarning, msg.Type)
	assert.Equal(t, "da82e8ed", msg.SessionToken)
	assert.Equal(t, "Alice", data.UserID)
	assert.Equal(t, "audio", data.ProblemType)
	assert.Equal(t, f.now.UnixMilli(), data.Timestamp)
}

func TestReport_Guards(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.Report("keyboard")
	assert.ErrorIs(t, err, ErrUnknownProblem)

	f.c.identity = identity.NewStatic("", "Cours de Go")
	_, err = f.c.Report("audio")
	assert.ErrorIs(t, err, interfaces.ErrNoIdentity)

	assert.Empty(t, f.sender.sent)
}

// FUNCTIONAL VALIDATION TEST: a reporter already counted in the window adds nothing, a new one adds exactly one
func TestHandleWarning_CountsDistinctReporters(t *testing.T) {
	f := newFixture(t)

	f.report(t, "Bob", "audio")
	require.Len(t, f.notifier.raised, 1)
	alert := f.notifier.raised[0]
	assert.Equal(t, 1, alert.Count)
	assert.Equal(t, "Problème de son", alert.Label)
	assert.Equal(t, "Un étudiant signale un problème", alert.Message)

	f.now = f.now.Add(10 * time.Second)
	f.report(t, "Bob", "audio")
	require.Len(t, f.notifier.updated, 1)
	assert.Equal(t, 1, f.notifier.updated[0].Count)

	f.report(t, "Carol", "audio")
	require.Len(t, f.notifier.raised, 2)
	assert.Equal(t, 2, f.notifier.raised[1].Count)
	assert.Equal(t, alert.ID, f.notifier.raised[1].ID)
	assert.Equal(t, "2 étudiants signalent un problème", f.notifier.raised[1].Message)

	alerts := f.c.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, []string{"Bob", "Carol"}, alerts[0].Reporters)
}

func TestHandleWarning_NonModeratorIgnores(t *testing.T) {
	f := newFixture(t)
	f.mod = false
	f.report(t, "Bob", "audio")

	assert.Empty(t, f.notifier.raised)
	assert.Empty(t, f.c.Alerts())
}

func TestHandleWarning_RejectsInvalid(t *testing.T) {
	f := newFixture(t)
	err := f.c.HandleWarning(types.NewWarningMessage("s", types.WarningData{ProblemType: "audio"}))
	assert.ErrorIs(t, err, types.ErrEmptyUserID)
	err = f.c.HandleWarning(types.NewWarningMessage("s", types.WarningData{UserID: "Bob"}))
	assert.ErrorIs(t, err, types.ErrEmptyProblemType)
}

func TestPostpone_Resurfaces(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.c.Postpone("audio"), ErrNoAlert)

	f.report(t, "Bob", "audio")
	require.NoError(t, f.c.Postpone("audio"))
	assert.Equal(t, []string{"audio"}, f.notifier.dismissed)
	assert.Empty(t, f.c.Alerts())
	require.Len(t, f.timers, 1)
	assert.Equal(t, 5*time.Minute, f.timers[0].delay)

	// Hidden alerts are counted silently
	f.report(t, "Bob", "audio")
	assert.Empty(t, f.notifier.updated)

	// Reports in later windows roll the aggregator over while the alert is hidden
	f.now = f.now.Add(f.timers[0].delay)
	f.report(t, "Carol", "video")
	require.Len(t, f.notifier.raised, 2)

	f.timers[0].fire()
	require.Len(t, f.notifier.raised, 3)
	resurfaced := f.notifier.raised[2]
	assert.Equal(t, "audio", resurfaced.ProblemType)
	assert.Equal(t, f.notifier.raised[0].ID, resurfaced.ID)
	assert.Equal(t, 1, resurfaced.Count)
	assert.Len(t, f.c.Alerts(), 2)

	// The aggregate is released once raised again
	f.now = f.now.Add(10 * time.Minute)
	f.report(t, "Carol", "video")
	assert.Equal(t, 1, f.c.agg.Len())
}

func TestPostpone_StaleTimerIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.report(t, "Bob", "audio")
	require.NoError(t, f.c.Postpone("audio"))
	first := f.timers[0]

	require.NoError(t, f.c.Resolve("audio"))
	f.now = f.now.Add(first.delay)
	f.report(t, "Carol", "audio")
	require.NoError(t, f.c.Postpone("audio"))

	// The cancelled timer fires late and must not touch the new postponement
	first.fire()
	assert.Len(t, f.notifier.raised, 2)
	assert.Empty(t, f.c.Alerts())

	f.now = f.now.Add(f.timers[1].delay)
	f.timers[1].fire()
	require.Len(t, f.notifier.raised, 3)
	assert.Equal(t, []string{"Carol"}, f.notifier.raised[2].Reporters)
}

func TestPostpone_NewReporterRaisesEarly(t *testing.T) {
	f := newFixture(t)
	f.report(t, "Bob", "audio")
	require.NoError(t, f.c.Postpone("audio"))

	f.report(t, "Carol", "audio")
	require.Len(t, f.notifier.raised, 2)
	assert.True(t, f.timers[0].stopped)
}

func TestPostpone_ResolvedDoesNotResurface(t *testing.T) {
	f := newFixture(t)
	f.report(t, "Bob", "audio")
	require.NoError(t, f.c.Postpone("audio"))
	timer := f.timers[0]

	require.NoError(t, f.c.Resolve("audio"))
	assert.True(t, timer.stopped)

	f.now = f.now.Add(timer.delay)
	timer.fire()
	assert.Len(t, f.notifier.raised, 1)
	assert.Empty(t, f.c.Alerts())
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.c.Resolve("audio"), ErrNoAlert)

	f.report(t, "Bob", "audio")
	f.report(t, "Bob", "video")
	require.NoError(t, f.c.Resolve("audio"))

	assert.Equal(t, []string{"audio"}, f.notifier.dismissed)
	alerts := f.c.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "video", alerts[0].ProblemType)
}

func TestCoordinator_RouterAndCleanup(t *testing.T) {
	f := newFixture(t)
	r := router.NewRouter(f.sender, nil)
	require.NoError(t, f.c.Register(r))

	msg, err := types.Decode([]byte(`{"type":"warning","sessionToken":"s","data":{"userId":"Bob","problemType":"connection","timestamp":1}}`))
	require.NoError(t, err)
	r.Dispatch(context.Background(), msg)
	require.Len(t, f.notifier.raised, 1)
	assert.Equal(t, "Problème de connexion", f.notifier.raised[0].Label)

	require.NoError(t, f.c.Postpone("connection"))
	f.c.Cleanup(false)
	assert.True(t, f.timers[0].stopped)
	assert.Empty(t, f.c.Alerts())
	assert.Zero(t, f.c.agg.Len())
}
