package authz

import (
	"strings"

	"github.com/posworks/posgrid-backend/pkg/enums"
)

// Action names accepted by HasPermission.
const (
	ActionCreate  = "create"
	ActionApprove = "approve"
	ActionManage  = "manage"
	ActionView    = "view"
	ActionAccess  = "access"
)

// Capability describes everything a single role may do. Role sets are keyed
// maps so lookups stay O(1) and the matrix reads as data, not code.
type Capability struct {
	CanCreate     map[enums.UserRole]bool
	CanApprove    map[enums.UserRole]bool
	AutoApprove   map[enums.UserRole]bool
	CanManage     map[enums.UserRole]bool
	CanView       map[enums.UserRole]bool
	RoutePrefixes []string
}

// Matrix maps each role to its capability set. It is the single source of
// truth for role capability; handlers must consult the engine instead of
// re-encoding these rules.
type Matrix map[enums.UserRole]Capability

// DefaultMatrix returns the production role scheme. Tests can substitute an
// alternate matrix when constructing the engine.
func DefaultMatrix() Matrix {
	return Matrix{
		enums.UserRoleSuperadmin: {
			CanCreate: map[enums.UserRole]bool{
				enums.UserRoleSuperadmin: true,
				enums.UserRoleManager:    true,
				enums.UserRoleCashier:    true,
			},
			CanApprove: map[enums.UserRole]bool{
				enums.UserRoleManager: true,
				enums.UserRoleCashier: true,
			},
			AutoApprove: map[enums.UserRole]bool{
				enums.UserRoleSuperadmin: true,
				enums.UserRoleManager:    true,
				enums.UserRoleCashier:    true,
			},
			CanManage: map[enums.UserRole]bool{
				enums.UserRoleSuperadmin: true,
				enums.UserRoleManager:    true,
				enums.UserRoleCashier:    true,
			},
			CanView: map[enums.UserRole]bool{
				enums.UserRoleSuperadmin: true,
				enums.UserRoleManager:    true,
				enums.UserRoleCashier:    true,
			},
			RoutePrefixes: []string{"/"},
		},
		enums.UserRoleManager: {
			CanCreate: map[enums.UserRole]bool{
				enums.UserRoleCashier: true,
			},
			CanApprove: map[enums.UserRole]bool{
				enums.UserRoleCashier: true,
			},
			AutoApprove: map[enums.UserRole]bool{
				enums.UserRoleCashier: true,
			},
			CanManage: map[enums.UserRole]bool{
				enums.UserRoleCashier: true,
			},
			CanView: map[enums.UserRole]bool{
				enums.UserRoleManager: true,
				enums.UserRoleCashier: true,
			},
			RoutePrefixes: []string{
				"/api/v1/auth",
				"/api/v1/users",
				"/api/v1/sessions",
			},
		},
		enums.UserRoleCashier: {
			CanView: map[enums.UserRole]bool{
				enums.UserRoleCashier: true,
			},
			RoutePrefixes: []string{
				"/api/v1/auth",
				"/api/v1/sessions/me",
			},
		},
	}
}

// Engine answers role-capability questions over an injected matrix.
type Engine struct {
	matrix Matrix
}

// NewEngine constructs an engine. A nil matrix falls back to the default.
func NewEngine(matrix Matrix) *Engine {
	if matrix == nil {
		matrix = DefaultMatrix()
	}
	return &Engine{matrix: matrix}
}

// HasPermission reports whether the acting role may perform action against
// the target role. ActionAccess is always true here; route reachability is
// enforced separately by CanAccessRoute.
func (e *Engine) HasPermission(actor enums.UserRole, action string, target enums.UserRole) bool {
	if action == ActionAccess {
		return true
	}
	caps, ok := e.matrix[actor]
	if !ok {
		return false
	}
	switch action {
	case ActionCreate:
		return caps.CanCreate[target]
	case ActionApprove:
		return caps.CanApprove[target]
	case ActionManage:
		return caps.CanManage[target]
	case ActionView:
		return caps.CanView[target]
	default:
		return false
	}
}

// CanAccessRoute reports whether the role may reach the route path, by
// prefix match against the role's allowed prefixes.
func (e *Engine) CanAccessRoute(role enums.UserRole, path string) bool {
	caps, ok := e.matrix[role]
	if !ok {
		return false
	}
	for _, prefix := range caps.RoutePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// ShouldAutoApprove reports whether an account created by creator with the
// target role starts out approved.
func (e *Engine) ShouldAutoApprove(creator, target enums.UserRole) bool {
	caps, ok := e.matrix[creator]
	if !ok {
		return false
	}
	return caps.AutoApprove[target]
}

// HasHigherAuthority reports whether role a outranks role b.
func (e *Engine) HasHigherAuthority(a, b enums.UserRole) bool {
	return authorityLevel(a) > authorityLevel(b)
}

func authorityLevel(role enums.UserRole) int {
	switch role {
	case enums.UserRoleSuperadmin:
		return 3
	case enums.UserRoleManager:
		return 2
	case enums.UserRoleCashier:
		return 1
	default:
		return 0
	}
}
