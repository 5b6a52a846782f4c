package service

import "errors"

var (
	// ErrRunCanceled is returned when the run context ends before every map
	// was fetched. No partial result is returned with it.
	ErrRunCanceled = errors.New("run canceled")
	// ErrDuplicateMap is returned when the catalog names a map twice.
	ErrDuplicateMap = errors.New("duplicate map in catalog")
	// ErrPartition means the result tables do not cover the catalog exactly.
	ErrPartition = errors.New("result does not partition catalog")
)
