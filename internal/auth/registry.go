// Package auth answers who may act on whose behalf. A caller may act for an
// account when it is the account itself, a router registered by governance
// or a router the account approved.
package auth

import (
	"errors"
	"strings"
	"sync"
)

// ErrNotGovernor is returned when a governance action comes from anyone but
// the governor.
var ErrNotGovernor = errors.New("auth: caller is not the governor")

// Registry is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	governor    string
	routers     map[string]bool
	approvals   map[string]map[string]bool // account -> router
	liquidators map[string]bool
	keepers     map[string]bool // price keepers
}

// NewRegistry creates a registry governed by governor. priceKeepers may
// push oracle rounds from the start.
func NewRegistry(governor string, priceKeepers ...string) *Registry {
	r := &Registry{
		governor:    normalize(governor),
		routers:     make(map[string]bool),
		approvals:   make(map[string]map[string]bool),
		liquidators: make(map[string]bool),
		keepers:     make(map[string]bool),
	}
	for _, k := range priceKeepers {
		if k = normalize(k); k != "" {
			r.keepers[k] = true
		}
	}
	return r
}

// Identifiers compare case-insensitively so hex addresses match however
// they are checksummed.
func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (r *Registry) IsApprovedCaller(account, caller string) bool {
	account, caller = normalize(account), normalize(caller)
	if caller == "" {
		return false
	}
	if account == caller {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routers[caller] || r.approvals[account][caller]
}

func (r *Registry) IsGovernor(caller string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isGovernor(caller)
}

func (r *Registry) isGovernor(caller string) bool {
	return r.governor != "" && normalize(caller) == r.governor
}

func (r *Registry) IsLiquidator(caller string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.liquidators[normalize(caller)]
}

// IsPriceKeeper reports whether caller may push oracle rounds. The
// governor always may.
func (r *Registry) IsPriceKeeper(caller string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isGovernor(caller) || r.keepers[normalize(caller)]
}

// SetGovernor hands governance to next.
func (r *Registry) SetGovernor(caller, next string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isGovernor(caller) {
		return ErrNotGovernor
	}
	r.governor = normalize(next)
	return nil
}

// SetRouter adds or removes a router trusted for every account.
func (r *Registry) SetRouter(caller, router string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isGovernor(caller) {
		return ErrNotGovernor
	}
	set(r.routers, normalize(router), enabled)
	return nil
}

func (r *Registry) SetLiquidator(caller, liquidator string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isGovernor(caller) {
		return ErrNotGovernor
	}
	set(r.liquidators, normalize(liquidator), enabled)
	return nil
}

func (r *Registry) SetPriceKeeper(caller, keeper string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isGovernor(caller) {
		return ErrNotGovernor
	}
	set(r.keepers, normalize(keeper), enabled)
	return nil
}

// ApproveRouter lets router act for account. Only the account itself can
// approve.
func (r *Registry) ApproveRouter(account, router string) {
	account, router = normalize(account), normalize(router)
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.approvals[account]
	if !ok {
		m = make(map[string]bool)
		r.approvals[account] = m
	}
	m[router] = true
}

func (r *Registry) DenyRouter(account, router string) {
	account, router = normalize(account), normalize(router)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.approvals[account], router)
}

func set(m map[string]bool, k string, enabled bool) {
	if enabled {
		m[k] = true
		return
	}
	delete(m, k)
}
