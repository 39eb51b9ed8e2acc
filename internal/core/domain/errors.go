package domain

import "errors"

var (
	// ErrInvalidSample marks a sample with out-of-range or non-finite
	// coordinates. The offending call is rejected; entity state is untouched.
	ErrInvalidSample = errors.New("invalid position sample")

	// ErrNoDataset means no boundary dataset has been loaded yet.
	ErrNoDataset = errors.New("no boundary dataset loaded")

	// ErrUnknownEntity means no state exists for the requested entity.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrNoFix means the position source has no usable coordinates right
	// now, for example a tracker that is offline or still acquiring GPS.
	ErrNoFix = errors.New("no position fix")
)
