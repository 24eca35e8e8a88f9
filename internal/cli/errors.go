package cli

import (
	"errors"
	"fmt"
)

var errNotLoggedIn = errors.New("not logged in; run `crewdesk login --email <email>`")

type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

func errUsage(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}
