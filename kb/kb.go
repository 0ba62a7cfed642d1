package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/usbl-simulator/model"
)

// ErrBodyNotFound is returned when a body lookup by ID or name fails.
var ErrBodyNotFound = errors.New("body not found")

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventBodyUpdated EventType = iota
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type EventType
	Body model.Body
}

// KnowledgeBase is an in-memory, thread-safe store of the bodies in the
// simulated world. It plays the role of the host physics engine: it answers
// "world position of X" and "find body by name".
type KnowledgeBase struct {
	mu sync.RWMutex

	bodies map[string]*model.Body
	byName map[string]string // name -> ID

	subs map[int]func(Event)
	next int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		bodies: make(map[string]*model.Body),
		byName: make(map[string]string),
		subs:   make(map[int]func(Event)),
	}
}

// AddBody adds a new body. It returns an error if the ID or name already exists.
func (kb *KnowledgeBase) AddBody(b *model.Body) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("body ID is required")
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.bodies[b.ID]; exists {
		return fmt.Errorf("body with ID %q already exists", b.ID)
	}
	name := b.Name
	if name == "" {
		name = b.ID
	}
	if _, exists := kb.byName[name]; exists {
		return fmt.Errorf("body with name %q already exists", name)
	}
	// store pointer so that motion models can update in-place
	kb.bodies[b.ID] = b
	kb.byName[name] = b.ID
	return nil
}

// GetBody returns a copy of the body with the given ID.
func (kb *KnowledgeBase) GetBody(id string) (model.Body, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	b, ok := kb.bodies[id]
	if !ok {
		return model.Body{}, fmt.Errorf("%w: id %q", ErrBodyNotFound, id)
	}
	return *b, nil
}

// BodyByName returns a copy of the body registered under name.
func (kb *KnowledgeBase) BodyByName(name string) (model.Body, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	id, ok := kb.byName[name]
	if !ok {
		return model.Body{}, fmt.Errorf("%w: name %q", ErrBodyNotFound, name)
	}
	return *kb.bodies[id], nil
}

// WorldPosition returns the current position of the body with the given ID.
func (kb *KnowledgeBase) WorldPosition(id string) (model.Position, error) {
	b, err := kb.GetBody(id)
	if err != nil {
		return model.Position{}, err
	}
	return b.Position, nil
}

// ListBodies returns a snapshot slice of all bodies.
func (kb *KnowledgeBase) ListBodies() []model.Body {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.Body, 0, len(kb.bodies))
	for _, b := range kb.bodies {
		res = append(res, *b)
	}
	return res
}

// RemoveBody deletes a body. Removing an unknown ID is an error.
func (kb *KnowledgeBase) RemoveBody(id string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	b, ok := kb.bodies[id]
	if !ok {
		return fmt.Errorf("%w: id %q", ErrBodyNotFound, id)
	}
	for name, bid := range kb.byName {
		if bid == b.ID {
			delete(kb.byName, name)
		}
	}
	delete(kb.bodies, id)
	return nil
}

// UpdateBodyPosition updates a body's position and notifies subscribers.
func (kb *KnowledgeBase) UpdateBodyPosition(id string, pos model.Position) error {
	kb.mu.Lock()
	b, ok := kb.bodies[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: id %q", ErrBodyNotFound, id)
	}
	b.Position = pos
	event := Event{
		Type: EventBodyUpdated,
		Body: *b, // copy for safety
	}
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.next
	kb.next++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}
