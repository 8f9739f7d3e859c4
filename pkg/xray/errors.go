package xray

import "errors"

var (
	// ErrEmptyAggregate is returned when a group has no geometry to outline.
	ErrEmptyAggregate = errors.New("no geometry to aggregate")

	// ErrDuplicateGroup is returned when a group is listed twice in one initialization.
	ErrDuplicateGroup = errors.New("duplicate group")

	// ErrNotContiguous is returned when the units of a group are not adjacent in the queue.
	ErrNotContiguous = errors.New("group units are not contiguous")

	// ErrNoModelReader is returned by InitializeFromModel without a model reader.
	ErrNoModelReader = errors.New("no model reader configured")
)
