package presence

import "errors"

var ErrNoUserList = errors.New("snapshot carries no recognised user list")
