package game

import (
	"errors"
	"fmt"
)

// Expected operation outcomes. Callers race against tick loops and each
// other, so these are ordinary results, never fatal.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
)

// OpError attaches the entity and id to one of the sentinel errors so
// the transport layer can report kind + id to the client.
type OpError struct {
	Err    error
	Entity string
	ID     string
}

func (e *OpError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Entity, e.ID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func NotFound(entity, id string) error {
	return &OpError{Err: ErrNotFound, Entity: entity, ID: id}
}

func InvalidState(entity, id string) error {
	return &OpError{Err: ErrInvalidState, Entity: entity, ID: id}
}

func Conflict(entity, id string) error {
	return &OpError{Err: ErrConflict, Entity: entity, ID: id}
}
