package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound if the model has not been written yet.
	ErrNotFound = errors.New("not found")

	// ErrInvalidModel if an imported model is inconsistent.
	ErrInvalidModel = errors.New("invalid model")
)

// DuplicateItemError reports an item placed on more than one storey.
func DuplicateItemError(item ItemKey) error {
	return fmt.Errorf("item %d appears more than once: %w", item, ErrInvalidModel)
}

// DuplicateStoreyError reports a storey listed more than once.
func DuplicateStoreyError(group GroupKey) error {
	return fmt.Errorf("storey %d appears more than once: %w", group, ErrInvalidModel)
}

// ValidateModel checks that storeys and items are unique.
func ValidateModel(model *Model) error {
	storeys := make(map[GroupKey]struct{}, len(model.Storeys))
	items := make(map[ItemKey]struct{})
	for _, s := range model.Storeys {
		if _, ok := storeys[s.ID]; ok {
			return DuplicateStoreyError(s.ID)
		}
		storeys[s.ID] = struct{}{}
		for _, it := range s.Items {
			if _, ok := items[it.ID]; ok {
				return DuplicateItemError(it.ID)
			}
			items[it.ID] = struct{}{}
		}
	}
	return nil
}
