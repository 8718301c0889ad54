package warning

import "errors"

var (
	ErrUnknownProblem = errors.New("unknown problem type")
	ErrNoAlert        = errors.New("no alert for problem type")
)
