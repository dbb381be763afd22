// Package input carries user interactions from producer goroutines (the
// overlay bridge) to the tick goroutine, which drains them once per tick.
package input

import (
	"sync"
	"time"

	"github.com/kasuganosora/desktoppet/game/geom"
)

type Kind uint8

const (
	KindFeed Kind = iota + 1
	KindPet
	KindDragStart
	KindDragMove
	KindDragEnd
	// KindRetune carries new tunables in Payload.
	KindRetune
)

func (k Kind) String() string {
	switch k {
	case KindFeed:
		return "feed"
	case KindPet:
		return "pet"
	case KindDragStart:
		return "drag_start"
	case KindDragMove:
		return "drag_move"
	case KindDragEnd:
		return "drag_end"
	case KindRetune:
		return "retune"
	}
	return "unknown"
}

type Event struct {
	Kind      Kind
	Magnitude float64
	Point     geom.Point
	Payload   any
	At        time.Time
}

// Droppable reports whether an event may be evicted from a full inbox.
// Feeds, pets and drag moves are; drag start/end and retunes change state
// the pet would otherwise never leave, so they are kept.
func (k Kind) Droppable() bool {
	return k == KindFeed || k == KindPet || k == KindDragMove
}

// Inbox is a fixed-size FIFO ring, safe for concurrent producers and a
// single consumer. When full, the oldest droppable event is evicted; an
// incoming droppable event is refused if nothing else can go. Consecutive
// drag moves collapse into the latest one.
type Inbox struct {
	mu      sync.Mutex
	data    []Event
	head    int
	count   int
	dropped uint64
}

func NewInbox(capacity int) *Inbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Inbox{data: make([]Event, capacity)}
}

// Push enqueues ev. It reports false when an event, queued or ev itself,
// had to be dropped.
func (b *Inbox) Push(ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Kind == KindDragMove && b.count > 0 {
		last := (b.head + b.count - 1) % len(b.data)
		if b.data[last].Kind == KindDragMove {
			b.data[last] = ev
			return true
		}
	}

	ok := true
	if b.count == len(b.data) {
		ok = false
		b.dropped++
		i := b.oldestDroppable()
		switch {
		case i >= 0:
			b.remove(i)
		case ev.Kind.Droppable():
			return false
		default:
			// Only control events queued. Each one sets state outright, so
			// the newest of a kind wins and the oldest can go.
			b.remove(0)
		}
	}
	b.data[(b.head+b.count)%len(b.data)] = ev
	b.count++
	return ok
}

// oldestDroppable returns the queue position of the oldest droppable event,
// or -1.
func (b *Inbox) oldestDroppable() int {
	for i := 0; i < b.count; i++ {
		if b.data[(b.head+i)%len(b.data)].Kind.Droppable() {
			return i
		}
	}
	return -1
}

// remove deletes the event at queue position i, keeping order.
func (b *Inbox) remove(i int) {
	n := len(b.data)
	for j := i; j > 0; j-- {
		b.data[(b.head+j)%n] = b.data[(b.head+j-1)%n]
	}
	b.data[b.head] = Event{}
	b.head = (b.head + 1) % n
	b.count--
}

// Drain returns all queued events in FIFO order and empties the inbox.
func (b *Inbox) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	events := make([]Event, b.count)
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.data)
		events[i] = b.data[idx]
		b.data[idx] = Event{}
	}
	b.head = 0
	b.count = 0
	return events
}

func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped is the number of events discarded because the inbox was full.
func (b *Inbox) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Inbox) Feed(magnitude float64) bool {
	return b.Push(Event{Kind: KindFeed, Magnitude: magnitude})
}

func (b *Inbox) Pet(magnitude float64) bool {
	return b.Push(Event{Kind: KindPet, Magnitude: magnitude})
}

func (b *Inbox) DragStart(p geom.Point) bool {
	return b.Push(Event{Kind: KindDragStart, Point: p})
}

func (b *Inbox) DragMove(p geom.Point) bool {
	return b.Push(Event{Kind: KindDragMove, Point: p})
}

func (b *Inbox) DragEnd() bool {
	return b.Push(Event{Kind: KindDragEnd})
}
