// Package uistate carries affordance changes from any goroutine to the chrome
// owned by the UI goroutine.
package uistate

import "sync"

// Transition is a change of the edit/delete affordances. Both commands always
// move together.
type Transition struct {
	EditingEnabled bool
}

// Target applies transitions. It is only ever called on the UI goroutine.
type Target interface {
	ApplyEditing(enabled bool)
}

// Channel is a single-consumer mailbox: any goroutine may Post, the queue is
// drained in FIFO order by a function scheduled on the UI goroutine.
//
// Transitions posted before a target is attached are not dropped; the most
// recent one is replayed when the target attaches.
type Channel struct {
	dispatch func(func())

	mu        sync.Mutex
	queue     []Transition
	scheduled bool

	// Owned by the UI goroutine.
	target Target
	last   *Transition
}

// NewChannel creates a channel whose drain runs through dispatch, typically a
// platform's DispatchToMain. dispatch must not block.
func NewChannel(dispatch func(func())) *Channel {
	return &Channel{dispatch: dispatch}
}

// Post enqueues t and returns immediately.
func (c *Channel) Post(t Transition) {
	c.mu.Lock()
	c.queue = append(c.queue, t)
	schedule := !c.scheduled
	c.scheduled = true
	c.mu.Unlock()

	if schedule {
		c.dispatch(c.drain)
	}
}

// Attach installs the chrome target and replays the last transition seen so
// far. Must be called on the UI goroutine.
func (c *Channel) Attach(t Target) {
	c.target = t
	if t != nil && c.last != nil {
		t.ApplyEditing(c.last.EditingEnabled)
	}
}

// Detach removes the target, e.g. while the menu is being rebuilt. Must be
// called on the UI goroutine.
func (c *Channel) Detach() {
	c.target = nil
}

func (c *Channel) drain() {
	c.mu.Lock()
	batch := c.queue
	c.queue = nil
	c.scheduled = false
	c.mu.Unlock()

	for i := range batch {
		t := batch[i]
		c.last = &t
		if c.target != nil {
			c.target.ApplyEditing(t.EditingEnabled)
		}
	}
}
