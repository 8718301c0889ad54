package identity

import (
	"sync"
	"sync/atomic"

	"roomsync/pkg/interfaces"
)

// PageResolver answers identity questions from the strings scraped off the
// conferencing page. It holds no state of its own, so every call reflects the
// page as it is now.
type PageResolver struct {
	source interfaces.PageSource
}

// NewPageResolver wraps source.
func NewPageResolver(source interfaces.PageSource) *PageResolver {
	return &PageResolver{source: source}
}

// DisplayName implements interfaces.IdentityProvider.
func (r *PageResolver) DisplayName() (string, bool) {
	label := r.source.SelfLabel()
	if label == "" {
		return "", false
	}
	return ParseSelfLabel(label)
}

// SessionFingerprint implements interfaces.IdentityProvider.
func (r *PageResolver) SessionFingerprint() string {
	return Fingerprint(r.source.PresentationTitle())
}

// Page is a PageSource fed by the overlay as the page renders. It also
// carries the moderator badge the overlay detects next to the self label.
type Page struct {
	mu        sync.RWMutex
	title     string
	label     string
	moderator atomic.Bool
}

// Update replaces both scraped strings.
func (p *Page) Update(title, selfLabel string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
	p.label = selfLabel
}

func (p *Page) PresentationTitle() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.title
}

func (p *Page) SelfLabel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.label
}

func (p *Page) SetModerator(moderator bool) { p.moderator.Store(moderator) }

// IsModerator implements interfaces.ModeratorCheck.
func (p *Page) IsModerator() bool { return p.moderator.Load() }

// Static is a fixed identity for headless runs and tests.
type Static struct {
	Name        string
	Fingerprint string
}

// NewStatic builds a Static identity whose fingerprint is derived from title.
func NewStatic(name, title string) *Static {
	return &Static{Name: name, Fingerprint: Fingerprint(title)}
}

func (s *Static) DisplayName() (string, bool) { return s.Name, s.Name != "" }

func (s *Static) SessionFingerprint() string {
	if s.Fingerprint == "" {
		return UnknownSession
	}
	return s.Fingerprint
}

var (
	_ interfaces.IdentityProvider = (*PageResolver)(nil)
	_ interfaces.IdentityProvider = (*Static)(nil)
	_ interfaces.PageSource       = (*Page)(nil)
	_ interfaces.ModeratorCheck   = (*Page)(nil)
)
