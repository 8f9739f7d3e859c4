package xray

import (
	"context"

	"github.com/bimview/xray/pkg/storage"
)

// Enabled reports whether outlines are shown.
func (p *Pipeline) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Focus returns the focused group, false when every group is shown.
func (p *Pipeline) Focus() (storage.GroupKey, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.focus, p.hasFocus
}

// Toggle flips whether outlines are shown and returns the new state. Ready
// outlines are shown according to the current focus. While plan view forces
// outlines on the call is ignored.
func (p *Pipeline) Toggle() bool {
	p.mu.Lock()
	if p.disposed || p.forced {
		enabled := p.enabled
		p.mu.Unlock()
		return enabled
	}
	p.enabled = !p.enabled
	enabled := p.enabled
	p.applyVisibilityLocked()
	p.mu.Unlock()

	p.triggerRender()
	return enabled
}

// SetFocus shows only group's outline among the ready ones, building it
// first if it is not ready. It does nothing while outlines are hidden.
func (p *Pipeline) SetFocus(ctx context.Context, group storage.GroupKey) error {
	p.mu.Lock()
	if p.disposed || !p.enabled {
		p.mu.Unlock()
		return nil
	}
	p.focus = group
	p.hasFocus = true
	st, ok := p.states[group]
	pending := ok && st.state != Ready
	p.mu.Unlock()

	if pending {
		if err := p.prioritize(ctx, group); err != nil {
			return err
		}
	}

	p.mu.Lock()
	if p.disposed || !p.enabled {
		p.mu.Unlock()
		return nil
	}
	p.applyVisibilityLocked()
	p.mu.Unlock()

	p.triggerRender()
	return nil
}

// ResetFocus shows every ready outline again.
func (p *Pipeline) ResetFocus() {
	p.mu.Lock()
	p.hasFocus = false
	if p.disposed || !p.enabled {
		p.mu.Unlock()
		return
	}
	p.applyVisibilityLocked()
	p.mu.Unlock()

	p.triggerRender()
}

// EnterPlanView forces outlines on, remembering whether they were on, and
// focuses group. Toggle is ignored until ExitPlanView.
func (p *Pipeline) EnterPlanView(ctx context.Context, group storage.GroupKey) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	if !p.forced {
		p.previousEnabled = p.enabled
		p.forced = true
	}
	p.enabled = true
	p.mu.Unlock()

	return p.SetFocus(ctx, group)
}

// ExitPlanView restores the state saved by EnterPlanView and clears the focus.
func (p *Pipeline) ExitPlanView() {
	p.mu.Lock()
	if p.disposed || !p.forced {
		p.mu.Unlock()
		return
	}
	p.enabled = p.previousEnabled
	p.forced = false
	p.previousEnabled = false
	p.hasFocus = false
	p.applyVisibilityLocked()
	p.mu.Unlock()

	p.triggerRender()
}

func (p *Pipeline) applyVisibilityLocked() {
	for _, group := range p.order {
		if st := p.states[group]; st != nil && st.state == Ready {
			p.applyVisibilityToLocked(st)
		}
	}
}

func (p *Pipeline) applyVisibilityToLocked(st *groupState) {
	visible := p.enabled && (!p.hasFocus || p.focus == st.group)
	st.artifact.SetVisible(visible)
	if visible {
		st.artifact.Material.SetDepth(false, false)
	}
}
