package layer

import "errors"

// Configuration errors returned by layer constructors.
var (
	// ErrInvalidGroups is returned when groups is neither 1 nor equal to
	// the number of input channels.
	ErrInvalidGroups = errors.New("layer: groups must be 1 or equal to channels_in")

	// ErrFeatureCount is returned when the number of output channels is
	// not a multiple of the number of groups.
	ErrFeatureCount = errors.New("layer: features must be a multiple of groups")
)
