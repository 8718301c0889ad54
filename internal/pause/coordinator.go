package pause

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"roomsync/internal/config"
	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

// ModuleID is the router subscription key of the pause coordinator.
const ModuleID = "pause"

// Fixed reasons broadcast by the moderator actions. Receivers match on them.
const (
	ReasonStopped  = "Pause arrêtée par le modérateur"
	ReasonExtended = "Pause prolongée par le modérateur"
)

const endTimeLayout = "15:04"

var coffeeKeywords = []string{"café", "cafe", "coffee", "☕", "cafés", "cafes", "cappuccino", "espresso"}

// IsCoffeeBreak reports whether a pause reason mentions coffee.
func IsCoffeeBreak(reason string) bool {
	lower := strings.ToLower(reason)
	for _, kw := range coffeeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type stopper interface {
	Stop() bool
}

// Coordinator announces pauses for moderators and runs the countdown on
// every receiver.
type Coordinator struct {
	cfg       *config.PauseConfig
	sender    interfaces.Sender
	identity  interfaces.IdentityProvider
	moderator interfaces.ModeratorCheck
	notifier  interfaces.PauseNotifier
	logger    *slog.Logger

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) stopper

	mu        sync.Mutex
	active    *types.PauseAnnouncement
	countdown stopper
	gen       uint64
}

// NewCoordinator wires a pause coordinator.
func NewCoordinator(cfg *config.PauseConfig, sender interfaces.Sender, identity interfaces.IdentityProvider,
	moderator interfaces.ModeratorCheck, notifier interfaces.PauseNotifier, logger *slog.Logger) *Coordinator {
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
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Register subscribes the coordinator to pause broadcasts.
func (c *Coordinator) Register(sub interfaces.Subscriber) error {
	return sub.Subscribe(ModuleID, []string{types.MessageTypePause}, map[string]interfaces.HandlerFunc{
		types.MessageTypePause: c.handle,
	})
}

func (c *Coordinator) handle(_ context.Context, msg types.Inbound) error {
	m, ok := msg.(*types.PauseMessage)
	if !ok {
		return nil
	}
	return c.HandlePause(m)
}

// Announce broadcasts a new pause of minutes. Moderators only.
func (c *Coordinator) Announce(minutes int, reason string) (types.PauseData, error) {
	if minutes <= 0 {
		return types.PauseData{}, ErrInvalidDuration
	}
	start := c.now()
	return c.broadcast(minutes, strings.TrimSpace(reason), start)
}

// Stop ends the current pause for everyone. Moderators only.
func (c *Coordinator) Stop() error {
	_, err := c.broadcast(0, ReasonStopped, c.now())
	return err
}

// Extend re-announces the current pause with a new cumulative duration.
// The start time is kept so every receiver computes the same end.
func (c *Coordinator) Extend(totalMinutes int) (types.PauseData, error) {
	if totalMinutes <= 0 {
		return types.PauseData{}, ErrInvalidDuration
	}
	current, ok := c.Active()
	if !ok {
		return types.PauseData{}, ErrNoActivePause
	}
	if totalMinutes <= current.Duration {
		return types.PauseData{}, ErrNotLonger
	}
	return c.broadcast(totalMinutes, ReasonExtended, time.UnixMilli(current.StartTime))
}

func (c *Coordinator) broadcast(minutes int, reason string, start time.Time) (types.PauseData, error) {
	if !c.moderator.IsModerator() {
		return types.PauseData{}, interfaces.ErrNotModerator
	}
	name, ok := c.identity.DisplayName()
	if !ok {
		return types.PauseData{}, interfaces.ErrNoIdentity
	}

	end := start.Add(time.Duration(minutes) * time.Minute)
	data := types.PauseData{
		UserID:           name,
		Duration:         minutes,
		Reason:           reason,
		StartTime:        start.UnixMilli(),
		EndTime:          end.UnixMilli(),
		EndTimeFormatted: end.Format(endTimeLayout),
	}
	if minutes == 0 {
		data.EndTime = data.StartTime
		data.EndTimeFormatted = start.Format(endTimeLayout)
	}

	if err := c.sender.Send(types.NewPauseMessage(c.identity.SessionFingerprint(), data)); err != nil {
		return types.PauseData{}, err
	}
	c.logger.Info("pause broadcast", "duration", minutes, "reason", reason)
	return data, nil
}

// HandlePause applies a received pause. Duration 0 always means the pause was
// stopped and shows the ended notice, never a countdown.
func (c *Coordinator) HandlePause(m *types.PauseMessage) error {
	if err := m.Data.Validate(); err != nil {
		return err
	}
	now := c.now()

	c.mu.Lock()
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
	c.gen++

	if m.Data.Duration == 0 {
		c.active = nil
		c.mu.Unlock()

		c.logger.Info("pause stopped", "by", m.Data.UserID)
		c.notifier.PauseEnded(types.PauseEnd{
			Stopped: true,
			Reason:  m.Data.Reason,
			HideAt:  now.Add(c.cfg.EndNoticeDuration),
		})
		return nil
	}

	ends := time.UnixMilli(m.Data.EndTime)
	if m.Data.EndTime <= 0 {
		ends = now.Add(time.Duration(m.Data.Duration) * time.Minute)
	}
	ann := types.PauseAnnouncement{
		PauseData: m.Data,
		EndsAt:    ends,
		Coffee:    IsCoffeeBreak(m.Data.Reason),
	}
	if ann.EndTimeFormatted == "" {
		ann.EndTimeFormatted = ends.Format(endTimeLayout)
	}
	c.active = &ann
	gen := c.gen
	c.countdown = c.afterFunc(ends.Sub(now), func() { c.expire(gen) })
	c.mu.Unlock()

	c.logger.Info("pause started", "by", ann.UserID, "duration", ann.Duration, "ends", ann.EndTimeFormatted)
	c.notifier.PauseStarted(ann)
	return nil
}

// expire ends the countdown of generation gen unless a newer announcement replaced it.
func (c *Coordinator) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.active == nil {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.countdown = nil
	c.mu.Unlock()

	c.logger.Info("pause ended")
	c.notifier.PauseEnded(types.PauseEnd{HideAt: c.now().Add(c.cfg.EndNoticeDuration)})
}

// Active returns the running pause, if any.
func (c *Coordinator) Active() (types.PauseAnnouncement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return types.PauseAnnouncement{}, false
	}
	return *c.active, true
}

// Cleanup implements interfaces.Component.
func (c *Coordinator) Cleanup(bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
	c.active = nil
	c.gen++
}
