package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wayfinder-app/wayfinder/internal/model"
)

// Memory is an in-process Store used by service and handler tests. It
// enforces the same uniqueness and conditional-update semantics as the
// Postgres implementation.
type Memory struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*model.User
	devices   map[uuid.UUID]*model.TOTPDevice
	codes     map[uuid.UUID]*model.RecoveryCode
	sessions  map[string]*memorySession
	routes    map[uuid.UUID]*model.Route
	locations map[uuid.UUID]*model.SearchedLocation
	favs      map[uuid.UUID]*model.FavRoute
}

type memorySession struct {
	userID    uuid.UUID
	expiresAt time.Time
	revoked   bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		users:     make(map[uuid.UUID]*model.User),
		devices:   make(map[uuid.UUID]*model.TOTPDevice),
		codes:     make(map[uuid.UUID]*model.RecoveryCode),
		sessions:  make(map[string]*memorySession),
		routes:    make(map[uuid.UUID]*model.Route),
		locations: make(map[uuid.UUID]*model.SearchedLocation),
		favs:      make(map[uuid.UUID]*model.FavRoute),
	}
}

func (m *Memory) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.EmailHash = LookupHash(u.Email)
	u.UsernameHash = LookupHash(u.Username)
	for _, existing := range m.users {
		if existing.EmailHash == u.EmailHash || existing.UsernameHash == u.UsernameHash {
			return ErrDuplicate
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	clone := *u
	m.users[u.ID] = &clone
	return nil
}

func (m *Memory) UserByEmailHash(_ context.Context, emailHash string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.EmailHash == emailHash {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UserByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *Memory) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *Memory) RecordLoginFailure(_ context.Context, id uuid.UUID, now time.Time, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return 0, ErrNotFound
	}
	if u.LastFailedAt.IsZero() || u.LastFailedAt.Before(now.Add(-window)) {
		u.FailedAttempts = 1
	} else {
		u.FailedAttempts++
	}
	u.LastFailedAt = now
	return u.FailedAttempts, nil
}

func (m *Memory) ResetLoginFailures(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[id]; ok {
		u.FailedAttempts = 0
		u.LastFailedAt = time.Time{}
	}
	return nil
}

func (m *Memory) SetTwoFAEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.TwoFAEnabled = enabled
	return nil
}

func (m *Memory) Device(_ context.Context, userID uuid.UUID, confirmed bool) (*model.TOTPDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *model.TOTPDevice
	for _, d := range m.devices {
		if d.UserID == userID && d.Confirmed == confirmed {
			if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
				latest = d
			}
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (m *Memory) CreateDevice(_ context.Context, d *model.TOTPDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	clone := *d
	m.devices[d.ID] = &clone
	return nil
}

func (m *Memory) ConfirmDevice(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.Confirmed = true
	return nil
}

func (m *Memory) DeleteDevices(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, d := range m.devices {
		if d.UserID == userID {
			delete(m.devices, id)
		}
	}
	return nil
}

func (m *Memory) ReplaceCodes(_ context.Context, userID uuid.UUID, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, c := range m.codes {
		if c.UserID == userID {
			delete(m.codes, id)
		}
	}
	for _, h := range hashes {
		id := uuid.New()
		m.codes[id] = &model.RecoveryCode{
			ID: id, UserID: userID, CodeHash: h, CreatedAt: time.Now(),
		}
	}
	return nil
}

func (m *Memory) ConsumeCode(_ context.Context, userID uuid.UUID, codeHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.codes {
		if c.UserID == userID && c.CodeHash == codeHash && !c.Used {
			c.Used = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) DeleteCodes(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, c := range m.codes {
		if c.UserID == userID {
			delete(m.codes, id)
		}
	}
	return nil
}

func (m *Memory) CreateSession(_ context.Context, userID uuid.UUID, tokenID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[tokenID] = &memorySession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *Memory) RevokeSession(_ context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[tokenID]
	if !ok {
		return ErrNotFound
	}
	s.revoked = true
	return nil
}

func (m *Memory) SessionValid(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[tokenID]
	if !ok {
		return false, nil
	}
	return !s.revoked && time.Now().Before(s.expiresAt), nil
}

func (m *Memory) CreateRoute(_ context.Context, r *model.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	clone := *r
	m.routes[r.ID] = &clone
	return nil
}

func (m *Memory) RoutesByUser(_ context.Context, userID uuid.UUID) ([]model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Route
	for _, r := range m.routes {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *Memory) DeleteRoute(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.routes[id]; ok && r.UserID == userID {
		delete(m.routes, id)
		return nil
	}
	return ErrNotFound
}

func (m *Memory) CreateLocation(_ context.Context, l *model.SearchedLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	clone := *l
	m.locations[l.ID] = &clone
	return nil
}

func (m *Memory) LocationsByUser(_ context.Context, userID uuid.UUID) ([]model.SearchedLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.SearchedLocation
	for _, l := range m.locations {
		if l.UserID == userID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *Memory) DeleteLocation(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.locations[id]; ok && l.UserID == userID {
		delete(m.locations, id)
		return nil
	}
	return ErrNotFound
}

func (m *Memory) CreateFavRoute(_ context.Context, f *model.FavRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	clone := *f
	m.favs[f.ID] = &clone
	return nil
}

func (m *Memory) FavRoutesByUser(_ context.Context, userID uuid.UUID) ([]model.FavRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.FavRoute
	for _, f := range m.favs {
		if f.UserID == userID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *Memory) DeleteFavRoute(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.favs[id]; ok && f.UserID == userID {
		delete(m.favs, id)
		return nil
	}
	return ErrNotFound
}
