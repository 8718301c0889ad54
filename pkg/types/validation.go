package types

// Validate checks a reaction toggle before it is put on the wire.
func (u *ReactionUpdate) Validate() error {
	if u.MessageID == "" {
		return ErrEmptyMessageID
	}
	if u.Emoji == "" {
		return ErrEmptyEmoji
	}
	if u.UserID == "" {
		return ErrEmptyUserID
	}
	if !IsValidReactionAction(u.Action) {
		return ErrInvalidAction
	}
	return nil
}

// Validate checks a pause announcement. A zero duration is the stop sentinel
// and therefore valid.
func (p *PauseData) Validate() error {
	if p.UserID == "" {
		return ErrEmptyUserID
	}
	if p.Duration < 0 {
		return ErrNegativeDuration
	}
	return nil
}

// Validate checks a problem report.
func (w *WarningData) Validate() error {
	if w.UserID == "" {
		return ErrEmptyUserID
	}
	if w.ProblemType == "" {
		return ErrEmptyProblemType
	}
	return nil
}

// Validate checks an inbound pause before it reaches the coordinator.
func (m *PauseMessage) Validate() error {
	if m.SessionToken == "" {
		return ErrEmptySessionToken
	}
	return m.Data.Validate()
}

// Validate checks an inbound warning before it reaches the coordinator.
func (m *WarningMessage) Validate() error {
	if m.SessionToken == "" {
		return ErrEmptySessionToken
	}
	return m.Data.Validate()
}

// IsValidReactionAction reports whether action is add or remove.
func IsValidReactionAction(action ReactionAction) bool {
	switch action {
	case ReactionAdd, ReactionRemove:
		return true
	default:
		return false
	}
}

// IsPresenceType reports whether msgType is one of the user list spellings.
func IsPresenceType(msgType string) bool {
	switch msgType {
	case MessageTypeActiveUsers, MessageTypeUserLists, MessageTypeUserListsUpdate:
		return true
	default:
		return false
	}
}
