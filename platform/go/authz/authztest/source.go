// Package authztest provides an in-memory authz.Source for tests.
package authztest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/platform/go/authz"
)

type grantKey struct {
	agency uuid.UUID
	client uuid.UUID
}

// Source is a concurrency-safe authz.Source backed by maps.
type Source struct {
	mu          sync.RWMutex
	permissions map[uuid.UUID]authz.Permission
	grants      map[grantKey]bool

	PermissionCalls int
	GrantCalls      int
}

// NewSource returns an empty Source.
func NewSource() *Source {
	return &Source{
		permissions: make(map[uuid.UUID]authz.Permission),
		grants:      make(map[grantKey]bool),
	}
}

// SetRole assigns role to userID. orgID must be uuid.Nil for platform roles.
func (s *Source) SetRole(userID, orgID uuid.UUID, role authz.Role) {
	var org *uuid.UUID
	if orgID != uuid.Nil {
		id := orgID
		org = &id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[userID] = authz.NewPermission(userID, org, role)
}

// RemoveRole deletes the user's assignment.
func (s *Source) RemoveRole(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.permissions, userID)
}

// SetGrant creates or toggles an agency grant.
func (s *Source) SetGrant(agencyOrgID, clientOrgID uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grantKey{agency: agencyOrgID, client: clientOrgID}] = active
}

func (s *Source) Permission(_ context.Context, userID uuid.UUID) (authz.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PermissionCalls++

	perm, ok := s.permissions[userID]
	if !ok {
		return authz.Permission{}, authz.ErrNoAssignment
	}
	return perm, nil
}

func (s *Source) ActiveGrant(_ context.Context, agencyOrgID, clientOrgID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GrantCalls++
	return s.grants[grantKey{agency: agencyOrgID, client: clientOrgID}], nil
}
