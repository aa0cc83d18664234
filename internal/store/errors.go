package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateOccurrence = errors.New("occurrence already materialized")
)
