// Package session tracks the detached remote processes of a run.
//
// A Handle names one background process by host, role and socket.  The
// Registry enforces that at most one handle per (host, role) is Active
// at a time; a second spawn for the same pair is refused with
// ErrRoleActive rather than silently shadowing the first.
package session

import (
	"fmt"
	"sort"
	"sync"

	ncerr "dohgen/internal/errors"
)

// State is the lifecycle position of a Handle.
type State int

const (
	Detached State = iota // not yet created
	Active                // spawned and attachable
	Dead                  // killed or lost
)

func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Active:
		return "active"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Role is the part a process plays in a run.
type Role string

const (
	RoleServer  Role = "server"
	RoleCapture Role = "capture"
	RoleProxy   Role = "proxy"
	RoleClient  Role = "client"
)

// Key identifies the slot a handle occupies.
type Key struct {
	Host string
	Role Role
}

func (k Key) String() string { return string(k.Role) + "@" + k.Host }

// Handle is an opaque reference to one detached process.
type Handle struct {
	Key        Key
	Name       string // multiplexer session name
	Socket     string // attach point; empty when the platform has none
	Privileged bool

	mu    sync.Mutex
	state State
}

// NewHandle returns a Detached handle.
func NewHandle(key Key, name, socket string, privileged bool) *Handle {
	return &Handle{Key: key, Name: name, Socket: socket, Privileged: privileged}
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	if h == nil {
		return Dead
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Attachable reports whether input can be delivered to the process.
func (h *Handle) Attachable() bool {
	return h.State() == Active && h.Socket != ""
}

func (h *Handle) set(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) String() string {
	if h == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s[%s]", h.Key, h.Name)
}

// Registry holds the Active handles of the current run.
type Registry struct {
	mu     sync.Mutex
	active map[Key]*Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[Key]*Handle)}
}

// Activate moves h from Detached to Active.  It fails with
// ErrRoleActive if another handle already occupies h's slot.
func (r *Registry) Activate(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.active[h.Key]; ok && prev.State() == Active {
		return fmt.Errorf("%w: %s held by %s", ncerr.ErrRoleActive, h.Key, prev.Name)
	}
	if s := h.State(); s != Detached {
		return fmt.Errorf("session %s: cannot activate from %s", h, s)
	}
	h.set(Active)
	r.active[h.Key] = h
	return nil
}

// Reserve checks that key is free without activating anything.
func (r *Registry) Reserve(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.active[key]; ok && prev.State() == Active {
		return fmt.Errorf("%w: %s held by %s", ncerr.ErrRoleActive, key, prev.Name)
	}
	return nil
}

// Lookup returns the handle occupying key, if any.
func (r *Registry) Lookup(key Key) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[key]
	return h, ok
}

// Kill marks h Dead and frees its slot.
func (r *Registry) Kill(h *Handle) {
	if h == nil {
		return
	}
	h.set(Dead)
	r.mu.Lock()
	if r.active[h.Key] == h {
		delete(r.active, h.Key)
	}
	r.mu.Unlock()
}

// KillHost marks every handle on host Dead.  When roles is non-empty
// only those roles are affected.
func (r *Registry) KillHost(host string, roles ...Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	match := func(role Role) bool {
		if len(roles) == 0 {
			return true
		}
		for _, want := range roles {
			if role == want {
				return true
			}
		}
		return false
	}

	n := 0
	for k, h := range r.active {
		if k.Host == host && match(k.Role) {
			h.set(Dead)
			delete(r.active, k)
			n++
		}
	}
	return n
}

// Active returns the live handles sorted by key.
func (r *Registry) Active() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, 0, len(r.active))
	for _, h := range r.active {
		if h.State() == Active {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Len returns the number of Active handles.
func (r *Registry) Len() int { return len(r.Active()) }
