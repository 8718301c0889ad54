package reaction

import "errors"

var (
	ErrMalformedSnapshot = errors.New("malformed reaction snapshot")
	ErrEmptyPalette      = errors.New("emoji palette cannot be empty")
	ErrNoEmojiFile       = errors.New("no emoji file configured")
)
