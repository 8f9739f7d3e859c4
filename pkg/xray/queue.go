package xray

import (
	"fmt"

	"github.com/bimview/xray/pkg/storage"
)

// WorkUnit is the extraction of one item on behalf of its group.
type WorkUnit struct {
	Group storage.GroupKey
	Item  storage.ItemKey
}

// GroupChildren is a group with its resolved children.
type GroupChildren struct {
	Group    storage.GroupKey
	Children []storage.ItemKey
}

// Progress counts groups: Total enqueued, Completed ready.
type Progress struct {
	Completed int
	Total     int
}

// buildQueue flattens groups into a unit queue, keeping every group's units
// contiguous. Groups without children are left out and not counted.
func buildQueue(groups []GroupChildren) (queue []WorkUnit, enqueued []storage.GroupKey, err error) {
	seen := make(map[storage.GroupKey]struct{}, len(groups))
	for _, g := range groups {
		if _, ok := seen[g.Group]; ok {
			return nil, nil, fmt.Errorf("group %d: %w", g.Group, ErrDuplicateGroup)
		}
		seen[g.Group] = struct{}{}

		if len(g.Children) == 0 {
			continue
		}
		enqueued = append(enqueued, g.Group)
		for _, item := range g.Children {
			queue = append(queue, WorkUnit{Group: g.Group, Item: item})
		}
	}

	if err := validateContiguous(queue); err != nil {
		return nil, nil, err
	}
	return queue, enqueued, nil
}

// validateContiguous checks that once a group's run of units ends, the group
// never reappears.
func validateContiguous(queue []WorkUnit) error {
	closed := make(map[storage.GroupKey]struct{})
	for i, u := range queue {
		if _, ok := closed[u.Group]; ok {
			return fmt.Errorf("group %d reappears at unit %d: %w", u.Group, i, ErrNotContiguous)
		}
		if isLastOfGroup(queue, i) {
			closed[u.Group] = struct{}{}
		}
	}
	return nil
}

// isLastOfGroup reports whether unit i closes its group's run.
func isLastOfGroup(queue []WorkUnit, i int) bool {
	return i == len(queue)-1 || queue[i+1].Group != queue[i].Group
}
