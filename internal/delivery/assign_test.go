package delivery

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAssignRepo extends fakeRepo with the scheduler read queries.
type fakeAssignRepo struct {
	*fakeRepo
	zoneDrivers map[int64][]int64
	activeCount map[int64]int
}

func newFakeAssignRepo() *fakeAssignRepo {
	return &fakeAssignRepo{
		fakeRepo:    newFakeRepo(),
		zoneDrivers: make(map[int64][]int64),
		activeCount: make(map[int64]int),
	}
}

func (f *fakeAssignRepo) ListPendingScheduled(ctx context.Context, date time.Time) ([]Delivery, error) {
	var out []Delivery
	for _, d := range f.deliveries {
		if d.Status == StatusPending {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeAssignRepo) ListAvailableDrivers(ctx context.Context, zoneID int64) ([]Driver, error) {
	var out []Driver
	for _, id := range f.zoneDrivers[zoneID] {
		d := f.drivers[id]
		if d.IsActive && d.IsAvailable {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeAssignRepo) CountActiveDeliveries(ctx context.Context, driverID int64, date time.Time) (int, error) {
	return f.activeCount[driverID], nil
}

func (f *fakeAssignRepo) addZoneDriver(zoneID int64, d Driver, active int) {
	f.addDriver(d)
	f.zoneDrivers[zoneID] = append(f.zoneDrivers[zoneID], d.ID)
	f.activeCount[d.ID] = active
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rating(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBestDriverPrefersLeastBusy(t *testing.T) {
	repo := newFakeAssignRepo()
	repo.addZoneDriver(1, Driver{ID: 1, IsActive: true, IsAvailable: true, MaxDeliveriesPerDay: 10, Rating: rating("5.0")}, 3)
	repo.addZoneDriver(1, Driver{ID: 2, IsActive: true, IsAvailable: true, MaxDeliveriesPerDay: 10, Rating: rating("3.5")}, 1)

	assigner := NewAssigner(repo, NewService(repo.fakeRepo), testLogger())
	zone := int64(1)
	driver, ok, err := assigner.BestDriver(context.Background(), Delivery{ZoneID: &zone})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), driver.ID)
}

func TestBestDriverBreaksTiesByRating(t *testing.T) {
	repo := newFakeAssignRepo()
	repo.addZoneDriver(1, Driver{ID: 1, IsActive: true, IsAvailable: true, MaxDeliveriesPerDay: 10, Rating: rating("4.2")}, 2)
	repo.addZoneDriver(1, Driver{ID: 2, IsActive: true, IsAvailable: true, MaxDeliveriesPerDay: 10, Rating: rating("4.8")}, 2)

	assigner := NewAssigner(repo, NewService(repo.fakeRepo), testLogger())
	zone := int64(1)
	driver, ok, err := assigner.BestDriver(context.Background(), Delivery{ZoneID: &zone})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), driver.ID)
}

func TestBestDriverSkipsSaturatedDrivers(t *testing.T) {
	repo := newFakeAssignRepo()
	repo.addZoneDriver(1, Driver{ID: 1, IsActive: true, IsAvailable: true, MaxDeliveriesPerDay: 5, Rating: rating("5.0")}, 5)

	assigner := NewAssigner(repo, NewService(repo.fakeRepo), testLogger())
	zone := int64(1)
	_, ok, err := assigner.BestDriver(context.Background(), Delivery{ZoneID: &zone})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBestDriverRequiresZone(t *testing.T) {
	repo := newFakeAssignRepo()
	assigner := NewAssigner(repo, NewService(repo.fakeRepo), testLogger())
	_, ok, err := assigner.BestDriver(context.Background(), Delivery{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAutoAssignPending(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAssignRepo()
	repo.addZoneDriver(1, Driver{ID: 9, IsActive: true, IsAvailable: true, MaxDeliveriesPerDay: 10, Rating: rating("4.5")}, 0)

	svc := NewService(repo.fakeRepo)
	svc.WithNow(testClock())
	assigner := NewAssigner(repo, svc, testLogger())
	assigner.WithNow(testClock())

	zone := int64(1)
	withZone, err := svc.Create(ctx, CreateDeliveryRequest{OrderID: 1, Address: "a", ZoneID: &zone})
	require.NoError(t, err)
	noZone, err := svc.Create(ctx, CreateDeliveryRequest{OrderID: 2, Address: "b"})
	require.NoError(t, err)

	assigned, err := assigner.AutoAssignPending(ctx)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, withZone.ID, assigned[0].ID)
	assert.Equal(t, StatusAssigned, assigned[0].Status)

	skipped, err := svc.Get(ctx, noZone.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, skipped.Status)
}
