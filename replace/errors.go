package replace

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrity marks a recorded offset whose text no longer matches the replacement.
	ErrIntegrity = errors.New("replaced text changed since replacement")
	// ErrNotRecorded is returned when reverting a replacement the session does not hold.
	ErrNotRecorded = errors.New("replacement not recorded in session")
	// ErrBusy is returned when a revert races another apply or revert of the same file.
	ErrBusy = errors.New("file is being rewritten")
)

// IntegrityError reports one offset that could not be reverted.
type IntegrityError struct {
	Path     string
	Offset   int
	Expected string
	Found    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s at offset %d: expected %q, found %q", e.Path, e.Offset, e.Expected, e.Found)
}

// Is makes errors.Is(err, ErrIntegrity) hold for every IntegrityError.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}
