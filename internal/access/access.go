// Package access holds the caller-role predicates and the global pause gate.
//
// Roles are fixed at startup: one administrator identity and a set of
// authorized bridge identities (the external deposit channels). Union-level
// ownership is not handled here — the engine checks union.Owner directly.
// Every predicate is evaluated before any mutation, so a rejected caller
// never observes partial state.
package access

import (
	"errors"
	"sync"
)

var (
	// ErrUnauthorized is returned when the caller lacks the required role.
	ErrUnauthorized = errors.New("access: caller not authorized")

	// ErrPaused is returned by mutating operations while the global pause
	// is engaged.
	ErrPaused = errors.New("access: contract paused")
)

// Guard evaluates role checks and carries the global pause flag. The pause
// flag is process-local state owned by the single deployed engine instance.
type Guard struct {
	admin   string
	bridges map[string]bool

	mu     sync.RWMutex
	paused bool
}

// NewGuard creates a guard for the given administrator and bridge identities.
func NewGuard(admin string, bridges []string) *Guard {
	set := make(map[string]bool, len(bridges))
	for _, b := range bridges {
		set[b] = true
	}
	return &Guard{admin: admin, bridges: set}
}

// RequireAdmin rejects any caller other than the administrator.
func (g *Guard) RequireAdmin(caller string) error {
	if caller == "" || caller != g.admin {
		return ErrUnauthorized
	}
	return nil
}

// RequireBridge rejects callers that are not authorized bridge identities.
func (g *Guard) RequireBridge(caller string) error {
	if !g.bridges[caller] {
		return ErrUnauthorized
	}
	return nil
}

// SetPaused engages or releases the global pause. Role checking is the
// caller's job (admin only).
func (g *Guard) SetPaused(paused bool) {
	g.mu.Lock()
	g.paused = paused
	g.mu.Unlock()
}

// Paused reports whether the global pause is engaged.
func (g *Guard) Paused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

// CheckPaused returns ErrPaused while the global pause is engaged. Deposits
// via the bridge boundary skip this check; everything else that mutates
// state calls it first.
func (g *Guard) CheckPaused() error {
	if g.Paused() {
		return ErrPaused
	}
	return nil
}
