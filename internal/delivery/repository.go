package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for deliveries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations a transition needs inside one
// transaction.
type TxRepository interface {
	NextDeliveryNumber(ctx context.Context, at time.Time) (string, error)
	InsertDelivery(ctx context.Context, d Delivery) (Delivery, error)
	GetDeliveryForUpdate(ctx context.Context, id int64) (Delivery, error)
	UpdateDelivery(ctx context.Context, d Delivery) error
	InsertHistory(ctx context.Context, h StatusHistory) error
	GetDriver(ctx context.Context, id int64) (Driver, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("delivery: begin tx: %w", err)
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const deliveryColumns = `id, delivery_number, order_id, zone_id, driver_id, status, address,
	scheduled_date, distance_km, failure_reason, assigned_at, picked_up_at,
	out_for_delivery_at, arrived_at, delivered_at, failed_at, returned_at,
	created_at, updated_at`

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(
		&d.ID, &d.DeliveryNumber, &d.OrderID, &d.ZoneID, &d.DriverID, &d.Status,
		&d.Address, &d.ScheduledDate, &d.DistanceKm, &d.FailureReason,
		&d.AssignedAt, &d.PickedUpAt, &d.OutForDeliveryAt, &d.ArrivedAt,
		&d.DeliveredAt, &d.FailedAt, &d.ReturnedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, ErrDeliveryNotFound
	}
	return d, err
}

// GetDelivery retrieves a delivery by id.
func (r *Repository) GetDelivery(ctx context.Context, id int64) (Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM deliveries WHERE id = $1`, deliveryColumns)
	return scanDelivery(r.pool.QueryRow(ctx, query, id))
}

// ListDeliveries retrieves deliveries matching the filter plus a total count.
func (r *Repository) ListDeliveries(ctx context.Context, req ListDeliveriesRequest) ([]Delivery, int, error) {
	conds := []string{"1=1"}
	args := []any{}
	idx := 1
	if req.Status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", idx))
		args = append(args, *req.Status)
		idx++
	}
	if req.DriverID != nil {
		conds = append(conds, fmt.Sprintf("driver_id = $%d", idx))
		args = append(args, *req.DriverID)
		idx++
	}
	if req.ScheduledDate != nil {
		conds = append(conds, fmt.Sprintf("scheduled_date = $%d", idx))
		args = append(args, *req.ScheduledDate)
		idx++
	}
	where := strings.Join(conds, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM deliveries WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("delivery: count: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM deliveries WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		deliveryColumns, where, idx, idx+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("delivery: list: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// ListHistory returns the transition log for a delivery, oldest first.
func (r *Repository) ListHistory(ctx context.Context, deliveryID int64) ([]StatusHistory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, delivery_id, from_status, to_status, changed_by, latitude, longitude, note, created_at
		FROM delivery_status_history
		WHERE delivery_id = $1
		ORDER BY id`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("delivery: list history: %w", err)
	}
	defer rows.Close()

	var out []StatusHistory
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.ID, &h.DeliveryID, &h.FromStatus, &h.ToStatus, &h.ChangedBy,
			&h.Latitude, &h.Longitude, &h.Note, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

// NextDeliveryNumber allocates the next DEL-YYYYMM-NNNN number. The monthly
// counter row is locked so concurrent creates cannot collide.
func (t *txRepo) NextDeliveryNumber(ctx context.Context, at time.Time) (string, error) {
	month := at.Format("200601")
	var seq int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO delivery_number_sequences (month, last_value)
		VALUES ($1, 1)
		ON CONFLICT (month) DO UPDATE SET last_value = delivery_number_sequences.last_value + 1
		RETURNING last_value`, month).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DEL-%s-%04d", month, seq), nil
}

// InsertDelivery persists a new delivery and returns it with generated fields.
func (t *txRepo) InsertDelivery(ctx context.Context, d Delivery) (Delivery, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO deliveries (delivery_number, order_id, zone_id, status, address, scheduled_date, distance_km)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		d.DeliveryNumber, d.OrderID, d.ZoneID, d.Status, d.Address, d.ScheduledDate, d.DistanceKm,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Delivery{}, fmt.Errorf("delivery: insert: %w", err)
	}
	return d, nil
}

// GetDeliveryForUpdate locks the delivery row for the rest of the transaction.
func (t *txRepo) GetDeliveryForUpdate(ctx context.Context, id int64) (Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM deliveries WHERE id = $1 FOR UPDATE`, deliveryColumns)
	return scanDelivery(t.tx.QueryRow(ctx, query, id))
}

// UpdateDelivery writes the mutated aggregate back.
func (t *txRepo) UpdateDelivery(ctx context.Context, d Delivery) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE deliveries SET
			driver_id = $2, status = $3, failure_reason = $4,
			assigned_at = $5, picked_up_at = $6, out_for_delivery_at = $7,
			arrived_at = $8, delivered_at = $9, failed_at = $10, returned_at = $11,
			updated_at = $12
		WHERE id = $1`,
		d.ID, d.DriverID, d.Status, d.FailureReason,
		d.AssignedAt, d.PickedUpAt, d.OutForDeliveryAt,
		d.ArrivedAt, d.DeliveredAt, d.FailedAt, d.ReturnedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// InsertHistory appends one status history row.
func (t *txRepo) InsertHistory(ctx context.Context, h StatusHistory) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO delivery_status_history (delivery_id, from_status, to_status, changed_by, latitude, longitude, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		h.DeliveryID, h.FromStatus, h.ToStatus, h.ChangedBy, h.Latitude, h.Longitude, h.Note, h.CreatedAt,
	)
	return err
}

// GetDriver fetches a driver profile.
func (t *txRepo) GetDriver(ctx context.Context, id int64) (Driver, error) {
	var d Driver
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, name, phone, driver_type, is_active, is_available,
		       max_deliveries_per_day, rating, rate_per_delivery, rate_per_km,
		       created_at, updated_at
		FROM delivery_drivers WHERE id = $1`, id,
	).Scan(&d.ID, &d.UserID, &d.Name, &d.Phone, &d.Type, &d.IsActive, &d.IsAvailable,
		&d.MaxDeliveriesPerDay, &d.Rating, &d.RatePerDelivery, &d.RatePerKm,
		&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Driver{}, ErrDriverNotFound
	}
	return d, err
}

// GetTemplate resolves an active message template by type. The second
// return is false when no active template exists.
func (r *Repository) GetTemplate(ctx context.Context, templateType string) (MessageTemplate, bool, error) {
	var (
		tmpl     MessageTemplate
		channels []string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT template_type, body, channels
		FROM delivery_message_templates
		WHERE template_type = $1 AND is_active`, templateType,
	).Scan(&tmpl.Type, &tmpl.Body, &channels)
	if errors.Is(err, pgx.ErrNoRows) {
		return MessageTemplate{}, false, nil
	}
	if err != nil {
		return MessageTemplate{}, false, err
	}
	tmpl.Channels = channels
	return tmpl, true, nil
}

// RecipientPhone resolves the customer phone number behind an order.
func (r *Repository) RecipientPhone(ctx context.Context, orderID int64) (string, error) {
	var phone string
	err := r.pool.QueryRow(ctx,
		`SELECT customer_phone FROM orders WHERE id = $1`, orderID,
	).Scan(&phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("delivery: order %d not found", orderID)
	}
	return phone, err
}

// InsertNotification persists one queued notification record.
func (r *Repository) InsertNotification(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO delivery_notifications (delivery_id, channel, recipient, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.DeliveryID, n.Channel, n.Recipient, n.Message, n.Status, n.CreatedAt,
	)
	return err
}
