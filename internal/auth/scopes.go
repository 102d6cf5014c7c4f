// Package auth - scopes.go defines the permission scopes carried by bearer tokens and the
// helpers that check them. Reads of public boards and changelogs need no scope.
package auth

import (
	"fmt"
	"strings"
)

// Scope represents a permission/scope type
type Scope string

const (
	// ScopeFeedbackWrite allows creating, editing and voting on feedback.
	ScopeFeedbackWrite Scope = "feedback:write"
	// ScopeRoadmapWrite allows moving, archiving and restoring items on the roadmap.
	ScopeRoadmapWrite Scope = "roadmap:write"
	// ScopeReleasesWrite allows editing releases and viewing drafts.
	ScopeReleasesWrite Scope = "releases:write"
	// ScopeOrganizationsWrite allows creating organizations and boards and setting notification targets.
	ScopeOrganizationsWrite Scope = "organizations:write"
	// ScopeAuditRead allows reading the audit log.
	ScopeAuditRead Scope = "audit:read"

	// ScopeAdmin grants every scope.
	ScopeAdmin Scope = "admin"
)

// implied lists scopes granted by holding another scope.
var implied = map[Scope][]Scope{
	ScopeRoadmapWrite: {ScopeFeedbackWrite},
}

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeFeedbackWrite,
		ScopeRoadmapWrite,
		ScopeReleasesWrite,
		ScopeOrganizationsWrite,
		ScopeAuditRead,
		ScopeAdmin,
	}
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	valid := make(map[string]bool, len(AllScopes()))
	for _, s := range AllScopes() {
		valid[string(s)] = true
	}
	for _, scope := range scopes {
		if !valid[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}
	return nil
}

// HasScope checks if a user has a required scope. Admin grants everything.
func HasScope(userScopes []string, required Scope) bool {
	for _, scope := range userScopes {
		if scope == string(required) || scope == string(ScopeAdmin) {
			return true
		}
		for _, granted := range implied[Scope(scope)] {
			if granted == required {
				return true
			}
		}
	}
	return false
}

// HasAnyScope checks if a user has at least one of the required scopes
func HasAnyScope(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(userScopes, required) {
			return true
		}
	}
	return false
}

// ScopesFromClaim reads a scope claim that is either a space-separated string
// (RFC 8693 "scope") or a JSON array of strings.
func ScopesFromClaim(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return strings.Fields(val)
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
