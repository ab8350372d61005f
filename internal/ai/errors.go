package ai

import "errors"

// ErrUnavailable means the provider has no usable credentials or endpoint.
var ErrUnavailable = errors.New("ai provider unavailable")
