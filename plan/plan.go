package plan

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tag identifies a subscription tier.
type Tag string

const (
	// Individuel is the single-device tier.
	Individuel Tag = "individuel"
	// Famille is the shared household tier.
	Famille Tag = "famille"
)

// ErrInvalidLimit is returned when a plan table entry has a non-positive device limit.
var ErrInvalidLimit = errors.New("plan device limit must be positive")

// Normalize trims and lower-cases a tag so lookups are insensitive to caller formatting.
func Normalize(tag Tag) Tag {
	return Tag(strings.ToLower(strings.TrimSpace(string(tag))))
}

// Policy is the resolved device policy for one tag.
type Policy struct {
	Tag        Tag
	MaxDevices int
	managed    bool
}

// Managed reports whether the plan enforces a device limit.
func (p Policy) Managed() bool {
	return p.managed
}

// Allows reports whether one more device may join when active devices are already bound.
// Unmanaged policies always allow.
func (p Policy) Allows(active int) bool {
	if !p.managed {
		return true
	}
	return active < p.MaxDevices
}

// Unmanaged returns the policy variant for a tag with no device limit.
func Unmanaged(tag Tag) Policy {
	return Policy{Tag: Normalize(tag)}
}

// Resolver maps plan tags to device limits. It is immutable after construction and
// safe for concurrent use.
type Resolver struct {
	limits map[Tag]int
}

// DefaultLimits returns the stock plan table.
func DefaultLimits() map[Tag]int {
	return map[Tag]int{
		Individuel: 1,
		Famille:    5,
	}
}

// NewResolver builds a resolver from a tag → max devices table. The table is copied.
func NewResolver(limits map[Tag]int) (*Resolver, error) {
	r := &Resolver{limits: make(map[Tag]int, len(limits))}
	for tag, max := range limits {
		norm := Normalize(tag)
		if norm == "" {
			return nil, errors.New("plan tag cannot be empty")
		}
		if max <= 0 {
			return nil, fmt.Errorf("%w: %s=%d", ErrInvalidLimit, norm, max)
		}
		if _, dup := r.limits[norm]; dup {
			return nil, fmt.Errorf("duplicate plan tag after normalization: %s", norm)
		}
		r.limits[norm] = max
	}
	return r, nil
}

// MustResolver is NewResolver for static tables known to be valid.
func MustResolver(limits map[Tag]int) *Resolver {
	r, err := NewResolver(limits)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the policy for tag, or the unmanaged variant when tag is not in the table.
func (r *Resolver) Resolve(tag Tag) Policy {
	norm := Normalize(tag)
	if r == nil {
		return Unmanaged(norm)
	}
	max, ok := r.limits[norm]
	if !ok {
		return Unmanaged(norm)
	}
	return Policy{Tag: norm, MaxDevices: max, managed: true}
}

// MaxDevices returns the device limit for tag and whether the tag is managed.
func (r *Resolver) MaxDevices(tag Tag) (int, bool) {
	p := r.Resolve(tag)
	return p.MaxDevices, p.Managed()
}

// Tags lists managed tags in sorted order.
func (r *Resolver) Tags() []Tag {
	if r == nil {
		return nil
	}
	out := make([]Tag, 0, len(r.limits))
	for tag := range r.limits {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseLimits parses "tag=max,tag=max" into a plan table.
func ParseLimits(s string) (map[Tag]int, error) {
	out := make(map[Tag]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid plan entry %q: expected tag=max", part)
		}
		max, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid plan entry %q: %v", part, err)
		}
		out[Normalize(Tag(name))] = max
	}
	return out, nil
}
