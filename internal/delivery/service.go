package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrDeliveryNotFound  = errors.New("delivery: not found")
	ErrDriverNotFound    = errors.New("delivery: driver not found")
	ErrDriverUnavailable = errors.New("delivery: driver not active or not available")
	ErrReasonRequired    = errors.New("delivery: failure reason required")
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDelivery(ctx context.Context, id int64) (Delivery, error)
	ListDeliveries(ctx context.Context, req ListDeliveriesRequest) ([]Delivery, int, error)
	ListHistory(ctx context.Context, deliveryID int64) ([]StatusHistory, error)
}

// Notifier is told about successful transitions so customer notifications
// can be recorded. Implementations log their own failures; a notification
// problem never rolls back a committed transition.
type Notifier interface {
	StatusChanged(ctx context.Context, d Delivery, from, to Status)
}

// Service coordinates delivery lifecycle mutations. Every transition runs in
// one transaction: status update plus exactly one history row, or neither.
type Service struct {
	repo     RepositoryPort
	notifier Notifier
	now      func() time.Time
}

// NewService constructs the delivery service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNotifier attaches a status-change notifier.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create registers a new delivery for an order in pending status and
// allocates the next delivery number for the month.
func (s *Service) Create(ctx context.Context, req CreateDeliveryRequest) (Delivery, error) {
	if req.OrderID == 0 {
		return Delivery{}, errors.New("delivery: order id required")
	}
	if req.Address == "" {
		return Delivery{}, errors.New("delivery: address required")
	}
	var created Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDeliveryNumber(ctx, s.now())
		if err != nil {
			return fmt.Errorf("next delivery number: %w", err)
		}
		created, err = tx.InsertDelivery(ctx, Delivery{
			DeliveryNumber: number,
			OrderID:        req.OrderID,
			ZoneID:         req.ZoneID,
			Status:         StatusPending,
			Address:        req.Address,
			ScheduledDate:  req.ScheduledDate,
			DistanceKm:     req.DistanceKm,
		})
		return err
	})
	if err != nil {
		return Delivery{}, err
	}
	return created, nil
}

// Get returns a delivery by id.
func (s *Service) Get(ctx context.Context, id int64) (Delivery, error) {
	return s.repo.GetDelivery(ctx, id)
}

// List returns deliveries matching the filter.
func (s *Service) List(ctx context.Context, req ListDeliveriesRequest) ([]Delivery, int, error) {
	return s.repo.ListDeliveries(ctx, req)
}

// History returns the transition log for a delivery, oldest first.
func (s *Service) History(ctx context.Context, deliveryID int64) ([]StatusHistory, error) {
	return s.repo.ListHistory(ctx, deliveryID)
}

// mutation describes what a transition writes alongside the status itself.
type mutation struct {
	target    Status
	actorID   int64
	latitude  *decimal.Decimal
	longitude *decimal.Decimal
	note      string
	apply     func(d *Delivery, at time.Time)
}

// AssignDriver moves a pending or failed delivery to assigned after checking
// the driver can take it.
func (s *Service) AssignDriver(ctx context.Context, deliveryID int64, req AssignDriverRequest) (Delivery, error) {
	var out Delivery
	var from Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		driver, err := tx.GetDriver(ctx, req.DriverID)
		if err != nil {
			return err
		}
		if !driver.IsActive || !driver.IsAvailable {
			return ErrDriverUnavailable
		}
		from = d.Status
		d.DriverID = &driver.ID
		out, err = s.transition(ctx, tx, d, mutation{
			target:  StatusAssigned,
			actorID: req.ActorID,
			apply: func(d *Delivery, at time.Time) {
				d.AssignedAt = &at
			},
		})
		return err
	})
	if err != nil {
		return Delivery{}, err
	}
	s.notify(ctx, out, from, StatusAssigned)
	return out, nil
}

// Unassign releases the driver and returns the delivery to pending.
func (s *Service) Unassign(ctx context.Context, deliveryID int64, req TransitionRequest) (Delivery, error) {
	var out Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		d.DriverID = nil
		d.AssignedAt = nil
		out, err = s.transition(ctx, tx, d, mutation{
			target:    StatusPending,
			actorID:   req.ActorID,
			latitude:  req.Latitude,
			longitude: req.Longitude,
			note:      req.Note,
		})
		return err
	})
	if err != nil {
		return Delivery{}, err
	}
	return out, nil
}

// MarkPickedUp records the driver collecting the package.
func (s *Service) MarkPickedUp(ctx context.Context, deliveryID int64, req TransitionRequest) (Delivery, error) {
	return s.driverTransition(ctx, deliveryID, req, StatusPickedUp, func(d *Delivery, at time.Time) {
		d.PickedUpAt = &at
	})
}

// MarkOutForDelivery records the driver leaving for the customer address.
func (s *Service) MarkOutForDelivery(ctx context.Context, deliveryID int64, req TransitionRequest) (Delivery, error) {
	return s.driverTransition(ctx, deliveryID, req, StatusOutForDelivery, func(d *Delivery, at time.Time) {
		d.OutForDeliveryAt = &at
	})
}

// MarkArrived records arrival at the customer address.
func (s *Service) MarkArrived(ctx context.Context, deliveryID int64, req TransitionRequest) (Delivery, error) {
	return s.driverTransition(ctx, deliveryID, req, StatusArrived, func(d *Delivery, at time.Time) {
		d.ArrivedAt = &at
	})
}

// MarkDelivered completes the delivery. Terminal.
func (s *Service) MarkDelivered(ctx context.Context, deliveryID int64, req TransitionRequest) (Delivery, error) {
	return s.driverTransition(ctx, deliveryID, req, StatusDelivered, func(d *Delivery, at time.Time) {
		d.DeliveredAt = &at
	})
}

// MarkReturned records a failed package arriving back at the clinic. Terminal.
func (s *Service) MarkReturned(ctx context.Context, deliveryID int64, req TransitionRequest) (Delivery, error) {
	return s.driverTransition(ctx, deliveryID, req, StatusReturned, func(d *Delivery, at time.Time) {
		d.ReturnedAt = &at
	})
}

// MarkFailed records a failed attempt with its reason.
func (s *Service) MarkFailed(ctx context.Context, deliveryID int64, req FailRequest) (Delivery, error) {
	if req.Reason == "" {
		return Delivery{}, ErrReasonRequired
	}
	var out Delivery
	var from Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		from = d.Status
		d.FailureReason = req.Reason
		out, err = s.transition(ctx, tx, d, mutation{
			target:    StatusFailed,
			actorID:   req.ActorID,
			latitude:  req.Latitude,
			longitude: req.Longitude,
			note:      req.Reason,
			apply: func(d *Delivery, at time.Time) {
				d.FailedAt = &at
			},
		})
		return err
	})
	if err != nil {
		return Delivery{}, err
	}
	s.notify(ctx, out, from, StatusFailed)
	return out, nil
}

func (s *Service) driverTransition(ctx context.Context, deliveryID int64, req TransitionRequest, target Status, apply func(*Delivery, time.Time)) (Delivery, error) {
	var out Delivery
	var from Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		from = d.Status
		out, err = s.transition(ctx, tx, d, mutation{
			target:    target,
			actorID:   req.ActorID,
			latitude:  req.Latitude,
			longitude: req.Longitude,
			note:      req.Note,
			apply:     apply,
		})
		return err
	})
	if err != nil {
		return Delivery{}, err
	}
	s.notify(ctx, out, from, target)
	return out, nil
}

// transition is the single chokepoint for status changes: table check,
// timestamp stamp, row update, one history row.
func (s *Service) transition(ctx context.Context, tx TxRepository, d Delivery, m mutation) (Delivery, error) {
	if !d.Status.CanTransitionTo(m.target) {
		return Delivery{}, &InvalidTransitionError{From: d.Status, To: m.target}
	}
	from := d.Status
	at := s.now()
	d.Status = m.target
	d.UpdatedAt = at
	if m.apply != nil {
		m.apply(&d, at)
	}
	if err := tx.UpdateDelivery(ctx, d); err != nil {
		return Delivery{}, fmt.Errorf("update delivery: %w", err)
	}
	if err := tx.InsertHistory(ctx, StatusHistory{
		DeliveryID: d.ID,
		FromStatus: from,
		ToStatus:   m.target,
		ChangedBy:  m.actorID,
		Latitude:   m.latitude,
		Longitude:  m.longitude,
		Note:       m.note,
		CreatedAt:  at,
	}); err != nil {
		return Delivery{}, fmt.Errorf("insert history: %w", err)
	}
	return d, nil
}

func (s *Service) notify(ctx context.Context, d Delivery, from, to Status) {
	if s.notifier == nil {
		return
	}
	s.notifier.StatusChanged(ctx, d, from, to)
}
