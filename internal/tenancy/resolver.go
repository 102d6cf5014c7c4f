// Package tenancy resolves the organization and board named by URL slugs.
// A missing organization or board is an expected outcome reported as a
// not-found state, never as an error.
package tenancy

import (
	"context"
	"fmt"

	"github.com/lanehq/lanehq/internal/db/models"
)

// State is the outcome of a resolution.
type State string

const (
	StateLoading  State = "loading"
	StateNotFound State = "not_found"
	StateFound    State = "found"
)

// OrgLookup is the progress of the organization lookup. Organization is nil
// when the lookup finished without a match.
type OrgLookup struct {
	Done         bool
	Organization *models.Organization
}

// BoardLookup is the progress of the board lookup. Board is nil when the
// lookup finished without a match.
type BoardLookup struct {
	Done  bool
	Board *models.Board
}

// Resolution is the combined result of both lookups.
type Resolution struct {
	State        State                `json:"state"`
	Organization *models.Organization `json:"organization,omitempty"`
	Board        *models.Board        `json:"board,omitempty"`
}

// Found reports whether both entities resolved.
func (r Resolution) Found() bool {
	return r.State == StateFound
}

// Combine merges the two lookups, which may finish in either order. Any finished
// lookup without a match is not-found; otherwise an unfinished lookup is loading.
// A board owned by a different organization is not-found.
func Combine(org OrgLookup, board BoardLookup) Resolution {
	if (org.Done && org.Organization == nil) || (board.Done && board.Board == nil) {
		return Resolution{State: StateNotFound}
	}
	if !org.Done || !board.Done {
		return Resolution{State: StateLoading, Organization: org.Organization, Board: board.Board}
	}
	if board.Board.OrganizationID != org.Organization.ID {
		return Resolution{State: StateNotFound}
	}
	return Resolution{State: StateFound, Organization: org.Organization, Board: board.Board}
}

// OrganizationStore looks organizations up by slug. Returns nil, nil when absent.
type OrganizationStore interface {
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
}

// BoardStore looks boards up by organization and slug. Returns nil, nil when absent.
type BoardStore interface {
	GetBySlug(ctx context.Context, orgID, slug string) (*models.Board, error)
}

// Resolver performs the two sequential lookups.
type Resolver struct {
	orgs   OrganizationStore
	boards BoardStore
}

// NewResolver creates a resolver.
func NewResolver(orgs OrganizationStore, boards BoardStore) *Resolver {
	return &Resolver{orgs: orgs, boards: boards}
}

// Organization resolves an organization slug. The returned error is only set
// for lookup failures, not for a missing organization.
func (r *Resolver) Organization(ctx context.Context, slug string) (Resolution, error) {
	org, err := r.orgs.GetBySlug(ctx, slug)
	if err != nil {
		return Resolution{State: StateLoading}, fmt.Errorf("failed to resolve organization %q: %w", slug, err)
	}
	if org == nil {
		return Resolution{State: StateNotFound}, nil
	}
	return Resolution{State: StateFound, Organization: org}, nil
}

// Board resolves a board slug within an already resolved organization.
func (r *Resolver) Board(ctx context.Context, org *models.Organization, slug string) (Resolution, error) {
	board, err := r.boards.GetBySlug(ctx, org.ID, slug)
	if err != nil {
		return Resolution{State: StateLoading, Organization: org}, fmt.Errorf("failed to resolve board %q: %w", slug, err)
	}
	return Combine(OrgLookup{Done: true, Organization: org}, BoardLookup{Done: true, Board: board}), nil
}

// Resolve looks up the organization by slug and then the board by organization
// and slug. The board lookup is skipped when the organization is missing.
func (r *Resolver) Resolve(ctx context.Context, orgSlug, boardSlug string) (Resolution, error) {
	res, err := r.Organization(ctx, orgSlug)
	if err != nil || !res.Found() {
		return res, err
	}
	return r.Board(ctx, res.Organization, boardSlug)
}
