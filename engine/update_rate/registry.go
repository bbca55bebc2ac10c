package update_rate

import (
	"sync"

	"github.com/google/uuid"
)

// registry is the implementation of the Registry interface.
type registry struct {
	mu        *sync.Mutex
	settings  *Settings
	groups    map[uuid.UUID]*group
	nextShift uint8
}

type group struct {
	params *Params
	refs   int
}

// Registry owns the update-rate state of every owner group in a world.
// Meshes of the same owner share one Params so they skip and evaluate on the same frames.
type Registry interface {
	// Acquire returns the owner's group state, creating it on first use, and adds a reference.
	//
	// Parameters:
	//   - owner: the owning entity's identity
	//
	// Returns:
	//   - *Params: the shared group state
	Acquire(owner uuid.UUID) *Params

	// Release drops a reference taken by Acquire. The group is discarded when no references remain.
	//
	// Parameters:
	//   - owner: the owning entity's identity
	Release(owner uuid.UUID)

	// Lookup returns the owner's group state without taking a reference.
	//
	// Parameters:
	//   - owner: the owning entity's identity
	//
	// Returns:
	//   - *Params: the group state, or nil
	//   - bool: whether the owner has a group
	Lookup(owner uuid.UUID) (*Params, bool)

	// Len returns the number of live groups.
	//
	// Returns:
	//   - int: the group count
	Len() int

	// Settings returns the policy shared by all groups.
	//
	// Returns:
	//   - Settings: a copy of the policy
	Settings() Settings
}

var _ Registry = &registry{}

// NewRegistry creates a new Registry with the specified options applied.
//
// Parameters:
//   - options: a variadic list of RegistryBuilderOption functions to configure the Registry
//
// Returns:
//   - Registry: a new, empty registry
func NewRegistry(options ...RegistryBuilderOption) Registry {
	settings := DefaultSettings()
	r := &registry{
		mu:       &sync.Mutex{},
		settings: &settings,
		groups:   make(map[uuid.UUID]*group),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *registry) Acquire(owner uuid.UUID) *Params {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[owner]
	if !ok {
		g = &group{params: NewParams(r.settings, r.nextShift)}
		r.nextShift++
		r.groups[owner] = g
	}
	g.refs++
	return g.params
}

func (r *registry) Release(owner uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[owner]
	if !ok {
		return
	}
	g.refs--
	if g.refs <= 0 {
		delete(r.groups, owner)
	}
}

func (r *registry) Lookup(owner uuid.UUID) (*Params, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[owner]
	if !ok {
		return nil, false
	}
	return g.params, true
}

func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

func (r *registry) Settings() Settings {
	return *r.settings
}
