package roadmap

import (
	"errors"
	"fmt"
)

// Roadmap errors
var (
	ErrBoardNotFound   = errors.New("board not found")
	ErrItemNotFound    = errors.New("feedback item not found")
	ErrInvalidIndex    = errors.New("invalid target index: must be >= 0")
	ErrAlreadyArchived = errors.New("feedback item is already archived")
	ErrNoLanes         = errors.New("roadmap has no lanes configured")
)

// ConfigurationError reports a status that has no lane in the roadmap configuration.
// Views log it as a warning and render nothing for the offending item or lane.
type ConfigurationError struct {
	Status string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("lane configuration: status %q: %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("lane configuration: no lane for status %q", e.Status)
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
