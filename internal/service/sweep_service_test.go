package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vial-compliance-api/internal/models"
	"github.com/noah-isme/vial-compliance-api/internal/repository"
)

type fakeSweepStore struct {
	mu       sync.Mutex
	rows     map[string]models.SweepCandidate
	failures map[string]error
	attempts map[string]int
	pages    int
}

func newFakeSweepStore(rows ...models.SweepCandidate) *fakeSweepStore {
	store := &fakeSweepStore{
		rows:     map[string]models.SweepCandidate{},
		failures: map[string]error{},
		attempts: map[string]int{},
	}
	for _, row := range rows {
		store.rows[row.ID] = row
	}
	return store
}

func (f *fakeSweepStore) ListSweepCandidates(ctx context.Context, today, abandonedBefore time.Time, afterID string, limit int) ([]models.SweepCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages++
	var out []models.SweepCandidate
	for _, row := range f.rows {
		if row.ID <= afterID {
			continue
		}
		due := (row.Status == models.EnrollmentStatusPending && row.ExpirationDate.Before(today) && row.EnrollmentDate.Before(abandonedBefore)) ||
			(row.Status == models.EnrollmentStatusCompleted && row.ExpirationDate.Before(today))
		if due {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSweepStore) SweepStatus(ctx context.Context, id string, version int, from, to models.EnrollmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[id]++
	if err := f.failures[id]; err != nil {
		return err
	}
	row, ok := f.rows[id]
	if !ok || row.Version != version || row.Status != from {
		return repository.ErrVersionConflict
	}
	row.Status = to
	row.Version++
	f.rows[id] = row
	return nil
}

func (f *fakeSweepStore) get(id string) models.SweepCandidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

func sweepRow(id string, status models.EnrollmentStatus, enrolled, deadline, expiration int) models.SweepCandidate {
	return models.SweepCandidate{
		ID:             id,
		EnrollmentDate: days(enrolled),
		DeadlineDate:   days(deadline),
		ExpirationDate: days(expiration),
		Status:         status,
		Version:        1,
	}
}

func newSweepService(store sweepStore, audit AuditWriter, batch int) *SweepService {
	return newSweepServiceAt(store, audit, batch, day0)
}

func newSweepServiceAt(store sweepStore, audit AuditWriter, batch int, today time.Time) *SweepService {
	return NewSweepService(store, SweepConfig{
		BatchSize:  batch,
		Workers:    2,
		Retries:    1,
		RetryDelay: time.Millisecond,
		Now:        func() time.Time { return today.Add(3 * time.Hour) },
	}, nil, NewMetricsService(), audit, nil)
}

func sweepFixtureRows() []models.SweepCandidate {
	return []models.SweepCandidate{
		sweepRow("a-late", models.EnrollmentStatusPending, -70, -10, -10),
		sweepRow("b-abandoned", models.EnrollmentStatusPending, -200, -140, -140),
		sweepRow("c-lapsed", models.EnrollmentStatusCompleted, -300, -240, -1),
		sweepRow("d-valid", models.EnrollmentStatusCompleted, -30, 30, 150),
		sweepRow("e-fresh", models.EnrollmentStatusPending, -5, 55, 55),
	}
}

func TestSweepWritesEffectiveStatus(t *testing.T) {
	store := newFakeSweepStore(sweepFixtureRows()...)
	audit := &fakeAudit{}
	svc := newSweepService(store, audit, 2)

	result, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 2, Updated: 2}, result)

	assert.Equal(t, models.EnrollmentStatusPending, store.get("a-late").Status)
	assert.Equal(t, 1, store.get("a-late").Version)
	assert.Equal(t, models.EnrollmentStatusExpired, store.get("b-abandoned").Status)
	assert.Equal(t, models.EnrollmentStatusExpired, store.get("c-lapsed").Status)
	assert.Equal(t, models.EnrollmentStatusCompleted, store.get("d-valid").Status)
	assert.Equal(t, models.EnrollmentStatusPending, store.get("e-fresh").Status)

	for _, id := range []string{"b-abandoned", "c-lapsed"} {
		original := sweepFixtureRows()
		for _, row := range original {
			if row.ID != id {
				continue
			}
			got := store.get(id)
			assert.Equal(t, row.DeadlineDate, got.DeadlineDate, id)
			assert.Equal(t, row.ExpirationDate, got.ExpirationDate, id)
			assert.Equal(t, 2, got.Version, id)
		}
	}

	actions := audit.actions()
	require.Len(t, actions, 2)
	for _, action := range actions {
		assert.Equal(t, models.AuditActionEnrollmentSweep, action)
	}
	for _, entry := range audit.entries {
		assert.Nil(t, entry.UserID)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	store := newFakeSweepStore(sweepFixtureRows()...)
	svc := newSweepService(store, nil, 10)

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	second, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, second)
	assert.Equal(t, 2, store.get("b-abandoned").Version)
}

func TestSweepSkipsConflicts(t *testing.T) {
	store := newFakeSweepStore(sweepFixtureRows()...)
	store.failures["c-lapsed"] = repository.ErrVersionConflict
	svc := newSweepService(store, nil, 10)

	result, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Conflicts)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 1, store.attempts["c-lapsed"])
	assert.Equal(t, models.EnrollmentStatusCompleted, store.get("c-lapsed").Status)
}

func TestSweepRetriesThenCountsFailures(t *testing.T) {
	store := newFakeSweepStore(sweepRow("b-abandoned", models.EnrollmentStatusPending, -200, -140, -140))
	store.failures["b-abandoned"] = errors.New("connection reset")
	svc := newSweepService(store, nil, 10)

	result, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Updated)
	assert.Equal(t, 2, store.attempts["b-abandoned"])
}

func TestSweepPagesThroughCandidates(t *testing.T) {
	store := newFakeSweepStore(sweepFixtureRows()...)
	svc := newSweepService(store, nil, 1)

	result, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 3, store.pages)
}

func TestSweepLeavesLatePendingForSelfCompletion(t *testing.T) {
	late := sweepRow("a-late", models.EnrollmentStatusPending, -70, -10, -10)
	store := newFakeSweepStore(late)
	audit := &fakeAudit{}

	result, err := newSweepService(store, audit, 10).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
	stored := store.get("a-late")
	assert.Equal(t, models.EnrollmentStatusPending, stored.Status)
	assert.Equal(t, 1, stored.Version)
	assert.Empty(t, audit.actions())

	owner := Actor{UserID: "u1", Role: models.RoleNormal, DNI: "12345678"}
	assert.NoError(t, AuthorizeTransition(stored.Status, models.EnrollmentStatusCompleted, owner, "12345678"))

	later, err := newSweepServiceAt(store, audit, 10, days(130)).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1, Updated: 1}, later)
	assert.Equal(t, models.EnrollmentStatusExpired, store.get("a-late").Status)
	assert.Equal(t, 2, store.get("a-late").Version)
}

func TestSweepTargetsOnlyExpired(t *testing.T) {
	svc := newSweepService(newFakeSweepStore(), nil, 10)

	cases := []struct {
		name string
		row  models.SweepCandidate
		want models.EnrollmentStatus
	}{
		{"past deadline inside validity", sweepRow("a", models.EnrollmentStatusPending, -70, -10, -10), models.EnrollmentStatusPending},
		{"abandoned pending", sweepRow("b", models.EnrollmentStatusPending, -200, -140, -140), models.EnrollmentStatusExpired},
		{"lapsed completion", sweepRow("c", models.EnrollmentStatusCompleted, -300, -240, -1), models.EnrollmentStatusExpired},
		{"valid completion", sweepRow("d", models.EnrollmentStatusCompleted, -30, 30, 150), models.EnrollmentStatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, svc.targetFor(tc.row, day0))
		})
	}
}
