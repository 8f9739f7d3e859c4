package geometry

import "errors"

var (
	// ErrMalformedBuffer is returned when attribute lengths are not multiples of three
	// or normals do not match positions.
	ErrMalformedBuffer = errors.New("malformed geometry buffer")

	// ErrIndexOutOfRange is returned when an index points past the last vertex.
	ErrIndexOutOfRange = errors.New("geometry index out of range")

	// ErrNoBuffers is returned when merging an empty list.
	ErrNoBuffers = errors.New("no geometry buffers to merge")
)
