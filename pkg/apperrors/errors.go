package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTablesUnavailable = errors.New("tables metadata unavailable")
	ErrUnknownConnection = errors.New("unknown connection")
)
