package retrieval

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")
	ErrConfigurationMissing = errors.New("configuration missing")
)
