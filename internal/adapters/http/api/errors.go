package api

import "errors"

// ErrServe wraps listener start and shutdown failures.
var ErrServe = errors.New("metrics listener failed")
