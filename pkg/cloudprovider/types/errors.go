package types

import (
	"errors"
	"fmt"
)

var (
	ErrInstanceNotFound = errors.New("db instance not found")
	ErrAuth             = errors.New("authentication failed")
)

// RemoteError is returned when a provider API call fails.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
