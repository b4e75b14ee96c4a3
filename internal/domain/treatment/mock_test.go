package treatment

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elanza/clinic/internal/domain/catalog"
	"github.com/elanza/clinic/internal/platform/apperr"
)

// -- Mock Repositories --

type mockPackageRepo struct {
	mu        sync.Mutex
	packages  map[uuid.UUID]*Package
	createErr error
}

func newMockPackageRepo() *mockPackageRepo {
	return &mockPackageRepo{packages: make(map[uuid.UUID]*Package)}
}

func (m *mockPackageRepo) Create(_ context.Context, p *Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	p.PurchasedAt = time.Now().UTC()
	cp := *p
	m.packages[p.ID] = &cp
	return nil
}

func (m *mockPackageRepo) GetByID(_ context.Context, id uuid.UUID) (*Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packages[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "package not found")
	}
	cp := *p
	return &cp, nil
}

func (m *mockPackageRepo) ListByUser(_ context.Context, userID string) ([]*Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Package
	for _, p := range m.packages {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	return out, nil
}

func (m *mockPackageRepo) ConsumeSession(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packages[id]
	if !ok || p.UsedAppointments >= p.TotalAppointments {
		return false, nil
	}
	p.UsedAppointments++
	return true, nil
}

func (m *mockPackageRepo) ListSales(_ context.Context, from, to time.Time) ([]*Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Sale
	for _, p := range m.packages {
		if !p.PurchasedAt.Before(from) && p.PurchasedAt.Before(to) {
			cp := *p
			out = append(out, &Sale{Package: &cp, ServiceName: p.ServiceID, ClientName: "Cliente " + p.UserID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Package.PurchasedAt.Before(out[j].Package.PurchasedAt) })
	return out, nil
}

type mockHistoryRepo struct {
	mu        sync.Mutex
	entries   map[uuid.UUID]*HistoryEntry
	clock     time.Time
	deleteErr error
	deleted   []uuid.UUID
	rewritten []uuid.UUID
}

func newMockHistoryRepo() *mockHistoryRepo {
	return &mockHistoryRepo{
		entries: make(map[uuid.UUID]*HistoryEntry),
		clock:   time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// seed stores an entry stamped one minute after the previous one.
func (m *mockHistoryRepo) seed(pkg uuid.UUID, photos ...string) *HistoryEntry {
	e := &HistoryEntry{ID: uuid.New(), PackageID: pkg, DoctorName: "Dra. Ruiz", Photos: photos}
	m.Create(context.Background(), e)
	return e
}

func (m *mockHistoryRepo) Create(_ context.Context, e *HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Minute)
	e.Timestamp = m.clock
	if e.Photos == nil {
		e.Photos = []string{}
	}
	cp := *e
	cp.Photos = append([]string{}, e.Photos...)
	m.entries[e.ID] = &cp
	return nil
}

func (m *mockHistoryRepo) ListByPackage(_ context.Context, packageID uuid.UUID) ([]*HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*HistoryEntry
	for _, e := range m.entries {
		if e.PackageID == packageID {
			cp := *e
			cp.Photos = append([]string{}, e.Photos...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *mockHistoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.entries, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockHistoryRepo) UpdatePhotos(_ context.Context, id uuid.UUID, photos []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return apperr.New(apperr.NotFound, "history entry not found")
	}
	e.Photos = append([]string{}, photos...)
	m.rewritten = append(m.rewritten, id)
	return nil
}

func (m *mockHistoryRepo) photoCount(pkg uuid.UUID) int {
	entries, _ := m.ListByPackage(context.Background(), pkg)
	n := 0
	for _, e := range entries {
		n += len(e.Photos)
	}
	return n
}

type mockServices map[string]*catalog.Service

func (m mockServices) GetByID(_ context.Context, id string) (*catalog.Service, error) {
	if id == "broken" {
		return nil, errors.New("connection refused")
	}
	svc, ok := m[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "service not found")
	}
	return svc, nil
}

// failingBlobs fails deletes of paths containing "fail".
type failingBlobs struct {
	mu      sync.Mutex
	deleted []string
}

func (f *failingBlobs) Put(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("not supported")
}

func (f *failingBlobs) Delete(_ context.Context, path string) error {
	if strings.Contains(path, "fail") {
		return errors.New("storage unavailable")
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, path)
	f.mu.Unlock()
	return nil
}
