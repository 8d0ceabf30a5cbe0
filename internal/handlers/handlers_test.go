package handlers

import (
	"context"
	"errors"
	"sort"

	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/rolepolicy"
	"github.com/opsdeck/opsdeck/internal/services"
)

// memDirectory is an in-memory UserDirectory for handler tests.
type memDirectory struct {
	nextID uint
	byID   map[uint]*models.User

	upsertCalls int
	failWith    error
}

func newMemDirectory() *memDirectory {
	return &memDirectory{nextID: 1, byID: map[uint]*models.User{}}
}

func (m *memDirectory) LookupByEmail(_ context.Context, email string) (*models.User, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, services.ErrUserNotFound
}

func (m *memDirectory) LookupByID(_ context.Context, id uint) (*models.User, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, services.ErrUserNotFound
}

func (m *memDirectory) UpsertOnLogin(ctx context.Context, identity *services.Identity, role rolepolicy.Role) (*models.User, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.upsertCalls++
	if existing, err := m.LookupByEmail(ctx, identity.Email); err == nil {
		existing.Name = identity.Name
		return existing, nil
	}
	u := &models.User{
		ID:    m.nextID,
		Email: identity.Email,
		Name:  identity.Name,
		Role:  string(role),
	}
	m.byID[u.ID] = u
	m.nextID++
	return u, nil
}

func (m *memDirectory) ListAll(_ context.Context) ([]models.User, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]models.User, 0, len(m.byID))
	for _, u := range m.byID {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memDirectory) Create(ctx context.Context, name, email, role, status string) (*models.User, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	if name == "" || email == "" {
		return nil, services.ErrInvalidInput
	}
	if _, err := m.LookupByEmail(ctx, email); err == nil {
		return nil, services.ErrDuplicateEmail
	}
	u := &models.User{ID: m.nextID, Email: email, Name: name, Role: role, Status: status}
	m.byID[u.ID] = u
	m.nextID++
	return u, nil
}

func (m *memDirectory) Update(_ context.Context, id uint, patch services.UserPatch) (*models.User, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, services.ErrUserNotFound
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	return u, nil
}

func (m *memDirectory) Delete(_ context.Context, id uint) error {
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.byID[id]; !ok {
		return services.ErrUserNotFound
	}
	delete(m.byID, id)
	return nil
}

// stubVerifier returns a fixed identity or error.
type stubVerifier struct {
	identity *services.Identity
	err      error
	calls    int
}

func (s *stubVerifier) Verify(_ context.Context, _ string) (*services.Identity, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

var errBoom = errors.New("boom")
