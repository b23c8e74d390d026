package sessions

import "errors"

var (
	ErrNotFound    = errors.New("session not found")
	ErrNotPending  = errors.New("session is not pending")
	ErrDuplicateID = errors.New("session already exists")
)
