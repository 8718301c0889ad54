package interfaces

// IdentityProvider answers who the local participant is.
// FUNCTIONAL DISCOVERY: Called on every heartbeat and every outbound feature
// message, so implementations must be cheap and side-effect free.
type IdentityProvider interface {
	// DisplayName returns the local participant's cleaned name, or false when
	// the host page has not rendered it yet.
	DisplayName() (string, bool)

	// SessionFingerprint returns the stable per-meeting token. It never fails;
	// an unknown meeting yields a fixed placeholder.
	SessionFingerprint() string
}

// PageSource exposes the raw strings scraped from the conferencing page.
type PageSource interface {
	// PresentationTitle is the meeting title, or empty when absent.
	PresentationTitle() string

	// SelfLabel is the accessibility label of the local participant's tile,
	// or empty when absent.
	SelfLabel() string
}

// ModeratorCheck tells whether the local participant has moderator rights.
type ModeratorCheck interface {
	IsModerator() bool
}

// ModeratorFunc adapts a plain function to ModeratorCheck.
type ModeratorFunc func() bool

func (f ModeratorFunc) IsModerator() bool { return f() }
