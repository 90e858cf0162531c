package permission

import (
	"errors"
	"sort"
	"sync"
)

// MaxPermissions is the number of distinct permissions a [Registry] can hold.
const MaxPermissions = 64

var (
	// ErrUnknownPermission is returned when a permission name was never registered.
	ErrUnknownPermission = errors.New("permission not registered")
	// ErrRegistryFrozen is returned by Register after Freeze.
	ErrRegistryFrozen = errors.New("registry frozen")
)

// Registry maps permission names to bit positions within a [Mask64].
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry creates an empty [Registry] and registers names in order.
func NewRegistry(names ...string) (*Registry, error) {
	r := &Registry{
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}
	for _, name := range names {
		if _, err := r.Register(name); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register assigns the next available bit to the named permission.
// Returns the assigned bit index. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrRegistryFrozen
	}

	if name == "" {
		return -1, errors.New("permission name cannot be empty")
	}

	if _, exists := r.nameToBit[name]; exists {
		return -1, errors.New("permission already registered")
	}

	nextBit := len(r.nameToBit)
	if nextBit >= MaxPermissions {
		return -1, errors.New("permission limit exceeded")
	}

	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name

	return nextBit, nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Names returns registered permission names sorted by bit.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.nameToBit))
	for name := range r.nameToBit {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return r.nameToBit[out[i]] < r.nameToBit[out[j]] })
	return out
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// Subset builds a [Subset] grant from permission names.
func (r *Registry) Subset(names ...string) (Subset, error) {
	var mask Mask64
	for _, name := range names {
		bit, ok := r.Bit(name)
		if !ok {
			return Subset{}, errors.Join(ErrUnknownPermission, errors.New(name))
		}
		mask.Set(bit)
	}
	return Subset{Mask: mask}, nil
}

// Allowed reports whether g includes the named permission. An unregistered name is
// an error for every grant, [All] included.
func (r *Registry) Allowed(g Grant, name string) (bool, error) {
	bit, ok := r.Bit(name)
	if !ok {
		return false, ErrUnknownPermission
	}
	if g == nil {
		return false, nil
	}
	return g.allows(bit), nil
}
