package migration

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSource = errors.New("migration source is required")
	ErrDirtyDatabase = errors.New("database is in a dirty state - manual intervention required")
	ErrClosed        = errors.New("migrator has already been closed")
)

// Error carries the operation and schema version a migration failed at.
type Error struct {
	Operation string
	Version   uint
	Err       error
}

func (e *Error) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("migration %s failed at version %d: %v", e.Operation, e.Version, e.Err)
	}
	return fmt.Sprintf("migration %s failed: %v", e.Operation, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
