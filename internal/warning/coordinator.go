package warning

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"roomsync/internal/config"
	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

// ModuleID is the router subscription key of the warning coordinator.
const ModuleID = "warning"

type stopper interface {
	Stop() bool
}

// postponed is a hidden alert waiting to be raised again.
type postponed struct {
	timer   stopper
	alertID string
}

// Coordinator sends problem reports for any participant and aggregates them
// into alerts on moderator clients.
type Coordinator struct {
	cfg       *config.WarningConfig
	sender    interfaces.Sender
	identity  interfaces.IdentityProvider
	moderator interfaces.ModeratorCheck
	notifier  interfaces.WarningNotifier
	logger    *slog.Logger
	agg       *Aggregator

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) stopper

	mu        sync.Mutex
	visible   map[string]types.WarningAlert
	resurface map[string]*postponed
}

// NewCoordinator wires a warning coordinator.
func NewCoordinator(cfg *config.WarningConfig, sender interfaces.Sender, identity interfaces.IdentityProvider,
	moderator interfaces.ModeratorCheck, notifier interfaces.WarningNotifier, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:       cfg,
		sender:    sender,
		identity:  identity,
		moderator: moderator,
		notifier:  notifier,
		logger:    logger.With("component", ModuleID),
		agg:       NewAggregator(cfg.Cooldown),
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		visible:   make(map[string]types.WarningAlert),
		resurface: make(map[string]*postponed),
	}
}

// Register subscribes the coordinator to warning broadcasts.
func (c *Coordinator) Register(sub interfaces.Subscriber) error {
	return sub.Subscribe(ModuleID, []string{types.MessageTypeWarning}, map[string]interfaces.HandlerFunc{
		types.MessageTypeWarning: c.handle,
	})
}

func (c *Coordinator) handle(_ context.Context, msg types.Inbound) error {
	m, ok := msg.(*types.WarningMessage)
	if !ok {
		return nil
	}
	return c.HandleWarning(m)
}

// Report broadcasts a problem report from the local participant.
func (c *Coordinator) Report(problemType string) (types.WarningData, error) {
	if !IsKnownProblem(problemType) {
		return types.WarningData{}, ErrUnknownProblem
	}
	name, ok := c.identity.DisplayName()
	if !ok {
		return types.WarningData{}, interfaces.ErrNoIdentity
	}

	data := types.WarningData{UserID: name, ProblemType: problemType, Timestamp: c.now().UnixMilli()}
	if err := c.sender.Send(types.NewWarningMessage(c.identity.SessionFingerprint(), data)); err != nil {
		return types.WarningData{}, err
	}
	c.logger.Info("problem reported", "type", problemType)
	return data, nil
}

// HandleWarning aggregates a received report. Only moderators aggregate; a
// reporter already counted in the current window updates the count silently.
func (c *Coordinator) HandleWarning(m *types.WarningMessage) error {
	if err := m.Data.Validate(); err != nil {
		return err
	}
	if !c.moderator.IsModerator() {
		return nil
	}

	now := c.now()
	reportedAt := now
	if m.Data.Timestamp > 0 {
		reportedAt = time.UnixMilli(m.Data.Timestamp)
	}
	agg, isNew := c.agg.Add(m.Data.ProblemType, m.Data.UserID, reportedAt, now)
	alert := toAlert(agg)

	c.mu.Lock()
	_, shown := c.visible[alert.ProblemType]
	if isNew || shown {
		c.visible[alert.ProblemType] = alert
	}
	if isNew {
		c.cancelResurfaceLocked(alert.ProblemType)
	}
	c.mu.Unlock()

	switch {
	case isNew:
		c.logger.Info("problem alert raised", "type", alert.ProblemType, "count", alert.Count)
		c.notifier.WarningRaised(alert)
	case shown:
		c.notifier.WarningUpdated(alert)
	}
	return nil
}

func toAlert(agg Aggregate) types.WarningAlert {
	return types.WarningAlert{
		ID:          agg.AlertID,
		ProblemType: agg.ProblemType,
		Label:       Label(agg.ProblemType),
		Count:       len(agg.Reporters),
		Reporters:   agg.Reporters,
		ReportedAt:  agg.FirstReport,
		Message:     CountMessage(len(agg.Reporters)),
	}
}

// Postpone hides the alert of problemType and raises it again after the
// postpone delay unless it was resolved meanwhile.
func (c *Coordinator) Postpone(problemType string) error {
	c.mu.Lock()
	alert, ok := c.visible[problemType]
	if !ok {
		c.mu.Unlock()
		return ErrNoAlert
	}
	delete(c.visible, problemType)
	c.cancelResurfaceLocked(problemType)
	// The window has rolled over by the time the timer fires, so the
	// aggregate is held by its alert id until then.
	if c.agg.Pin(alert.ID) {
		alertID := alert.ID
		c.resurface[problemType] = &postponed{
			alertID: alertID,
			timer:   c.afterFunc(c.cfg.PostponeDelay, func() { c.resurfaceAlert(problemType, alertID) }),
		}
	}
	c.mu.Unlock()

	c.notifier.WarningDismissed(problemType)
	return nil
}

func (c *Coordinator) resurfaceAlert(problemType, alertID string) {
	c.mu.Lock()
	p, pending := c.resurface[problemType]
	if !pending || p.alertID != alertID {
		c.mu.Unlock()
		return
	}
	agg, ok := c.agg.Lookup(alertID)
	delete(c.resurface, problemType)
	c.agg.Unpin(alertID)
	_, shown := c.visible[problemType]
	if !ok || agg.Resolved || shown {
		c.mu.Unlock()
		return
	}
	alert := toAlert(agg)
	c.visible[problemType] = alert
	c.mu.Unlock()

	c.logger.Info("postponed alert raised again", "type", problemType)
	c.notifier.WarningRaised(alert)
}

// Resolve dismisses the alert of problemType for good.
func (c *Coordinator) Resolve(problemType string) error {
	resolved := c.agg.Resolve(problemType)

	c.mu.Lock()
	_, shown := c.visible[problemType]
	delete(c.visible, problemType)
	c.cancelResurfaceLocked(problemType)
	c.mu.Unlock()

	if !resolved && !shown {
		return ErrNoAlert
	}
	if shown {
		c.notifier.WarningDismissed(problemType)
	}
	return nil
}

func (c *Coordinator) cancelResurfaceLocked(problemType string) {
	if p, ok := c.resurface[problemType]; ok {
		p.timer.Stop()
		c.agg.Unpin(p.alertID)
		delete(c.resurface, problemType)
	}
}

// Alerts returns the visible alerts ordered by problem type.
func (c *Coordinator) Alerts() []types.WarningAlert {
	c.mu.Lock()
	alerts := lo.Values(c.visible)
	c.mu.Unlock()

	slices.SortFunc(alerts, func(a, b types.WarningAlert) int {
		switch {
		case a.ProblemType < b.ProblemType:
			return -1
		case a.ProblemType > b.ProblemType:
			return 1
		}
		return 0
	})
	return alerts
}

// Cleanup implements interfaces.Component.
func (c *Coordinator) Cleanup(bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for problemType := range c.resurface {
		c.cancelResurfaceLocked(problemType)
	}
	c.visible = make(map[string]types.WarningAlert)
	c.agg.Reset()
}
