// Package hook lets embedders observe and veto behavior lifecycle events.
// Handlers run on the tick goroutine and must return quickly.
package hook

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kasuganosora/desktoppet/game/needs"
)

// ErrInterrupt signals that a handler wants to stop further processing.
// For BeforeBehaviorSwitch it also vetoes the switch.
var ErrInterrupt = errors.New("hook interrupted")

// Fn is a hook handler. Returning (data, nil) continues the chain, possibly
// with modified data; (data, ErrInterrupt) stops it.
type Fn func(ctx context.Context, event string, data any) (any, error)

type entry struct {
	priority int
	fn       Fn
	name     string
}

// Center manages hook registrations.
type Center struct {
	mu    sync.RWMutex
	hooks map[string][]*entry
}

func NewCenter() *Center {
	return &Center{hooks: make(map[string][]*entry)}
}

// Register adds fn for event. Lower priority runs first; equal priorities
// run in registration order. name is used for Unregister.
func (c *Center) Register(event string, priority int, name string, fn Fn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := append(c.hooks[event], &entry{priority: priority, fn: fn, name: name})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	c.hooks[event] = entries
}

// Unregister removes all hooks with the given name for the given event.
func (c *Center) Unregister(event, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[event] = without(c.hooks[event], name)
}

// UnregisterAll removes the name's hooks across all events.
func (c *Center) UnregisterAll(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for event, entries := range c.hooks {
		c.hooks[event] = without(entries, name)
	}
}

func without(entries []*entry, name string) []*entry {
	n := 0
	for _, e := range entries {
		if e.name != name {
			entries[n] = e
			n++
		}
	}
	return entries[:n]
}

// Has reports whether any handler is registered for event.
func (c *Center) Has(event string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hooks[event]) > 0
}

// Trigger runs the handlers for event in priority order, threading data
// through them. ErrInterrupt stops the chain and is returned. Other
// handler errors do not stop the chain; they are joined and returned after
// the last handler.
func (c *Center) Trigger(ctx context.Context, event string, data any) (any, error) {
	c.mu.RLock()
	entries := make([]*entry, len(c.hooks[event]))
	copy(entries, c.hooks[event])
	c.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		out, err := c.call(ctx, e, event, data)
		data = out
		if errors.Is(err, ErrInterrupt) {
			return data, err
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return data, errors.Join(errs...)
}

func (c *Center) call(ctx context.Context, e *entry, event string, data any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = data, &PanicError{Hook: e.name, Value: r}
		}
	}()
	return e.fn(ctx, event, data)
}

// PanicError reports a handler that panicked.
type PanicError struct {
	Hook  string
	Value any
}

func (p *PanicError) Error() string { return "hook " + p.Hook + " panicked" }

// ---- Events ----

const (
	// BeforeBehaviorSwitch receives *SwitchEvent before a preemptive switch.
	// ErrInterrupt vetoes it. Switches after completion cannot be vetoed.
	BeforeBehaviorSwitch = "before_behavior_switch"
	// AfterBehaviorSwitch receives *SwitchEvent once the new instance started.
	AfterBehaviorSwitch = "after_behavior_switch"
	// OnBehaviorFinished receives *FinishedEvent for every terminal instance.
	OnBehaviorFinished = "on_behavior_finished"
	// OnUserEvent receives *UserEvent for every drained input event.
	OnUserEvent = "on_user_event"
)

type SwitchEvent struct {
	From       string // empty when nothing was active
	To         string
	Reason     string
	Utility    float64
	Needs      needs.State
	Preemptive bool
}

type FinishedEvent struct {
	Behavior          string
	Seq               uint64
	Interrupted       bool
	// InterruptDeferred is set when an interrupt was refused and the
	// instance ran to completion instead.
	InterruptDeferred bool
	Elapsed           time.Duration
}

type UserEvent struct {
	Kind      string
	Magnitude float64
}
