package permission

import (
	"errors"
	"sync"
)

// RoleManager maps role names to grants.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Grant
	frozen bool
}

// NewRoleManager creates a role manager resolving permission names through registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Grant),
	}
}

// RegisterRole defines roleName with exactly permissionNames.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	grant, err := rm.registry.Subset(permissionNames...)
	if err != nil {
		return err
	}
	return rm.register(roleName, grant)
}

// RegisterSuperRole defines roleName with the [All] grant.
func (rm *RoleManager) RegisterSuperRole(roleName string) error {
	return rm.register(roleName, All{})
}

func (rm *RoleManager) register(roleName string, grant Grant) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if roleName == "" {
		return errors.New("role name empty")
	}
	if _, exists := rm.roles[roleName]; exists {
		return errors.New("role already registered")
	}

	rm.roles[roleName] = grant
	return nil
}

// Grant returns the grant of roleName.
func (rm *RoleManager) Grant(roleName string) (Grant, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	g, ok := rm.roles[roleName]
	return g, ok
}

// Can reports whether roleName holds the named permission. Unknown roles hold nothing.
func (rm *RoleManager) Can(roleName, permissionName string) (bool, error) {
	g, ok := rm.Grant(roleName)
	if !ok {
		if _, known := rm.registry.Bit(permissionName); !known {
			return false, ErrUnknownPermission
		}
		return false, nil
	}
	return rm.registry.Allowed(g, permissionName)
}

// Freeze prevents further role registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// Count returns the number of registered roles.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
