package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// systemActorID marks transitions performed by the scheduler rather than a
// staff user.
const systemActorID int64 = 0

// AssignmentRepository provides the read queries auto-assignment needs.
type AssignmentRepository interface {
	ListPendingScheduled(ctx context.Context, date time.Time) ([]Delivery, error)
	ListAvailableDrivers(ctx context.Context, zoneID int64) ([]Driver, error)
	CountActiveDeliveries(ctx context.Context, driverID int64, date time.Time) (int, error)
}

// Assigner picks drivers for pending deliveries: least busy first, then
// highest rated.
type Assigner struct {
	repo    AssignmentRepository
	service *Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewAssigner constructs the assignment helper.
func NewAssigner(repo AssignmentRepository, service *Service, logger *slog.Logger) *Assigner {
	return &Assigner{repo: repo, service: service, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (a *Assigner) WithNow(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// BestDriver returns the preferred driver for a delivery, or false when no
// eligible driver covers its zone.
func (a *Assigner) BestDriver(ctx context.Context, d Delivery) (Driver, bool, error) {
	if d.ZoneID == nil {
		return Driver{}, false, nil
	}
	drivers, err := a.repo.ListAvailableDrivers(ctx, *d.ZoneID)
	if err != nil {
		return Driver{}, false, fmt.Errorf("list available drivers: %w", err)
	}
	today := a.now()

	type candidate struct {
		driver Driver
		count  int
	}
	eligible := make([]candidate, 0, len(drivers))
	for _, driver := range drivers {
		count, err := a.repo.CountActiveDeliveries(ctx, driver.ID, today)
		if err != nil {
			return Driver{}, false, fmt.Errorf("count deliveries for driver %d: %w", driver.ID, err)
		}
		if count >= driver.MaxDeliveriesPerDay {
			continue
		}
		eligible = append(eligible, candidate{driver: driver, count: count})
	}
	if len(eligible) == 0 {
		return Driver{}, false, nil
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].count != eligible[j].count {
			return eligible[i].count < eligible[j].count
		}
		return eligible[i].driver.Rating.GreaterThan(eligible[j].driver.Rating)
	})
	return eligible[0].driver, true, nil
}

// AutoAssignPending assigns every pending delivery scheduled for today to
// the best available driver. Deliveries with no eligible driver are skipped;
// the next run picks them up.
func (a *Assigner) AutoAssignPending(ctx context.Context) ([]Delivery, error) {
	pending, err := a.repo.ListPendingScheduled(ctx, a.now())
	if err != nil {
		return nil, fmt.Errorf("list pending deliveries: %w", err)
	}
	var assigned []Delivery
	for _, d := range pending {
		driver, ok, err := a.BestDriver(ctx, d)
		if err != nil {
			return assigned, err
		}
		if !ok {
			continue
		}
		updated, err := a.service.AssignDriver(ctx, d.ID, AssignDriverRequest{
			DriverID: driver.ID,
			ActorID:  systemActorID,
		})
		if err != nil {
			if a.logger != nil {
				a.logger.Warn("auto-assign skipped",
					slog.Int64("delivery_id", d.ID),
					slog.Int64("driver_id", driver.ID),
					slog.Any("error", err))
			}
			continue
		}
		assigned = append(assigned, updated)
	}
	return assigned, nil
}

// ============================================================================
// ASSIGNMENT QUERIES
// ============================================================================

// ListPendingScheduled returns pending deliveries scheduled for the given day.
func (r *Repository) ListPendingScheduled(ctx context.Context, date time.Time) ([]Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM deliveries WHERE status = $1 AND scheduled_date = $2 ORDER BY created_at`, deliveryColumns)
	rows, err := r.pool.Query(ctx, query, StatusPending, date.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("delivery: list pending: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListAvailableDrivers returns active, available drivers covering a zone.
func (r *Repository) ListAvailableDrivers(ctx context.Context, zoneID int64) ([]Driver, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.id, d.user_id, d.name, d.phone, d.driver_type, d.is_active, d.is_available,
		       d.max_deliveries_per_day, d.rating, d.rate_per_delivery, d.rate_per_km,
		       d.created_at, d.updated_at
		FROM delivery_drivers d
		JOIN delivery_driver_zones dz ON dz.driver_id = d.id
		WHERE d.is_active AND d.is_available AND dz.zone_id = $1
		ORDER BY d.id`, zoneID)
	if err != nil {
		return nil, fmt.Errorf("delivery: list drivers: %w", err)
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Phone, &d.Type, &d.IsActive, &d.IsAvailable,
			&d.MaxDeliveriesPerDay, &d.Rating, &d.RatePerDelivery, &d.RatePerKm,
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountActiveDeliveries counts a driver's workload for a day: everything
// assigned through delivered, excluding failed and returned.
func (r *Repository) CountActiveDeliveries(ctx context.Context, driverID int64, date time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM deliveries
		WHERE driver_id = $1 AND scheduled_date = $2
		  AND status IN ($3, $4, $5, $6, $7)`,
		driverID, date.Format("2006-01-02"),
		StatusAssigned, StatusPickedUp, StatusOutForDelivery, StatusArrived, StatusDelivered,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("delivery: count active: %w", err)
	}
	return count, nil
}
