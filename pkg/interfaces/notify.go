package interfaces

import "roomsync/pkg/types"

// PauseNotifier renders pause state. Implementations are driven from the
// dispatch goroutine or from pause timers and must not block.
type PauseNotifier interface {
	PauseStarted(ann types.PauseAnnouncement)
	PauseEnded(end types.PauseEnd)
}

// WarningNotifier renders moderator alerts.
type WarningNotifier interface {
	// WarningRaised shows a new alert and plays the alert sound.
	WarningRaised(alert types.WarningAlert)

	// WarningUpdated refreshes the reporter count of a visible alert silently.
	WarningUpdated(alert types.WarningAlert)

	// WarningDismissed hides the alert of problemType.
	WarningDismissed(problemType string)
}
