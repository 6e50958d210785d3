// Package partner provides the operator-partner registry consumed by the
// ledger: existence/active checks and typed permission matching.
package partner

import "strings"

// Permission is a typed capability granted to a partner. Permissions use a
// scope:action form; a grant may carry a wildcard action.
type Permission string

const (
	PermissionDebit    Permission = "wallet:debit"
	PermissionCredit   Permission = "wallet:credit"
	PermissionRollback Permission = "wallet:rollback"
	PermissionRead     Permission = "wallet:read"
	PermissionAll      Permission = "wallet:*"
)

// Matches reports whether a granted permission satisfies the required one.
// This is the only permission comparison in the codebase.
func (granted Permission) Matches(required Permission) bool {
	if granted == required {
		return true
	}

	scope, action, ok := strings.Cut(string(granted), ":")
	if !ok || action != "*" {
		return false
	}
	requiredScope, _, ok := strings.Cut(string(required), ":")
	return ok && scope == requiredScope
}

// ParsePermissions splits a stored comma-separated grant list.
func ParsePermissions(raw string) []Permission {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	perms := make([]Permission, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			perms = append(perms, Permission(part))
		}
	}
	return perms
}

// JoinPermissions renders a grant list back to its stored form.
func JoinPermissions(perms []Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}
