package delivery

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle of a delivery.
type Status string

const (
	StatusPending        Status = "pending"          // Created from an order, no driver yet
	StatusAssigned       Status = "assigned"         // Driver assigned
	StatusPickedUp       Status = "picked_up"        // Driver collected the package
	StatusOutForDelivery Status = "out_for_delivery" // On the road
	StatusArrived        Status = "arrived"          // Driver at the customer address
	StatusDelivered      Status = "delivered"        // Terminal: handed over
	StatusFailed         Status = "failed"           // Attempt failed, reason recorded
	StatusReturned       Status = "returned"         // Terminal: package back at the clinic
)

// transitions is the fixed adjacency table for the status machine. Every
// status mutation goes through CanTransitionTo; nothing writes the field
// directly.
var transitions = map[Status][]Status{
	StatusPending:        {StatusAssigned},
	StatusAssigned:       {StatusPickedUp, StatusPending},
	StatusPickedUp:       {StatusOutForDelivery},
	StatusOutForDelivery: {StatusArrived, StatusFailed},
	StatusArrived:        {StatusDelivered, StatusFailed},
	StatusFailed:         {StatusReturned, StatusAssigned},
	StatusReturned:       {},
	StatusDelivered:      {},
}

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transitions exist from this status.
func (s Status) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether the target status is reachable in one step.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the allowed next statuses for display purposes.
func (s Status) AllowedTransitions() []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// InvalidTransitionError reports a transition attempt outside the table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("delivery: cannot transition from %s to %s", e.From, e.To)
}

// DriverType distinguishes payroll drivers from per-delivery contractors.
type DriverType string

const (
	DriverTypeEmployee   DriverType = "employee"
	DriverTypeContractor DriverType = "contractor"
)

// Delivery represents one shipment for one store order.
type Delivery struct {
	ID             int64            `json:"id" db:"id"`
	DeliveryNumber string           `json:"delivery_number" db:"delivery_number"`
	OrderID        int64            `json:"order_id" db:"order_id"`
	ZoneID         *int64           `json:"zone_id,omitempty" db:"zone_id"`
	DriverID       *int64           `json:"driver_id,omitempty" db:"driver_id"`
	Status         Status           `json:"status" db:"status"`
	Address        string           `json:"address" db:"address"`
	ScheduledDate  *time.Time       `json:"scheduled_date,omitempty" db:"scheduled_date"`
	DistanceKm     *decimal.Decimal `json:"distance_km,omitempty" db:"distance_km"`
	FailureReason  string           `json:"failure_reason,omitempty" db:"failure_reason"`

	AssignedAt       *time.Time `json:"assigned_at,omitempty" db:"assigned_at"`
	PickedUpAt       *time.Time `json:"picked_up_at,omitempty" db:"picked_up_at"`
	OutForDeliveryAt *time.Time `json:"out_for_delivery_at,omitempty" db:"out_for_delivery_at"`
	ArrivedAt        *time.Time `json:"arrived_at,omitempty" db:"arrived_at"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	FailedAt         *time.Time `json:"failed_at,omitempty" db:"failed_at"`
	ReturnedAt       *time.Time `json:"returned_at,omitempty" db:"returned_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StatusHistory is one append-only audit row per successful transition.
// Rows are never updated or deleted.
type StatusHistory struct {
	ID         int64            `json:"id" db:"id"`
	DeliveryID int64            `json:"delivery_id" db:"delivery_id"`
	FromStatus Status           `json:"from_status" db:"from_status"`
	ToStatus   Status           `json:"to_status" db:"to_status"`
	ChangedBy  int64            `json:"changed_by" db:"changed_by"`
	Latitude   *decimal.Decimal `json:"latitude,omitempty" db:"latitude"`
	Longitude  *decimal.Decimal `json:"longitude,omitempty" db:"longitude"`
	Note       string           `json:"note,omitempty" db:"note"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
}

// Driver is a delivery driver profile (employee or contractor).
type Driver struct {
	ID                  int64            `json:"id" db:"id"`
	UserID              int64            `json:"user_id" db:"user_id"`
	Name                string           `json:"name" db:"name"`
	Phone               string           `json:"phone,omitempty" db:"phone"`
	Type                DriverType       `json:"driver_type" db:"driver_type"`
	IsActive            bool             `json:"is_active" db:"is_active"`
	IsAvailable         bool             `json:"is_available" db:"is_available"`
	MaxDeliveriesPerDay int              `json:"max_deliveries_per_day" db:"max_deliveries_per_day"`
	Rating              decimal.Decimal  `json:"rating" db:"rating"`
	RatePerDelivery     *decimal.Decimal `json:"rate_per_delivery,omitempty" db:"rate_per_delivery"`
	RatePerKm           *decimal.Decimal `json:"rate_per_km,omitempty" db:"rate_per_km"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// Zone is a geographic delivery zone with a flat fee.
type Zone struct {
	ID        int64           `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Fee       decimal.Decimal `json:"fee" db:"fee"`
	IsActive  bool            `json:"is_active" db:"is_active"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Notification records a customer message queued for a status change.
// Sending is out of scope; the record is the contract.
type Notification struct {
	ID         int64      `json:"id" db:"id"`
	DeliveryID int64      `json:"delivery_id" db:"delivery_id"`
	Channel    string     `json:"channel" db:"channel"`
	Recipient  string     `json:"recipient" db:"recipient"`
	Message    string     `json:"message" db:"message"`
	Status     string     `json:"status" db:"status"`
	SentAt     *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateDeliveryRequest creates a delivery record from a paid order.
type CreateDeliveryRequest struct {
	OrderID       int64            `json:"order_id" validate:"required,gt=0"`
	Address       string           `json:"address" validate:"required,max=500"`
	ZoneID        *int64           `json:"zone_id,omitempty" validate:"omitempty,gt=0"`
	ScheduledDate *time.Time       `json:"scheduled_date,omitempty"`
	DistanceKm    *decimal.Decimal `json:"distance_km,omitempty"`
}

// AssignDriverRequest assigns a driver to a pending or failed delivery.
type AssignDriverRequest struct {
	DriverID int64 `json:"driver_id" validate:"required,gt=0"`
	ActorID  int64 `json:"actor_id" validate:"required,gt=0"`
}

// TransitionRequest carries the actor and optional geolocation for a
// driver-side status update.
type TransitionRequest struct {
	ActorID   int64            `json:"actor_id" validate:"required,gt=0"`
	Latitude  *decimal.Decimal `json:"latitude,omitempty"`
	Longitude *decimal.Decimal `json:"longitude,omitempty"`
	Note      string           `json:"note,omitempty" validate:"max=500"`
}

// FailRequest marks an attempt failed with a mandatory reason.
type FailRequest struct {
	Reason    string           `json:"reason" validate:"required,min=5,max=500"`
	ActorID   int64            `json:"actor_id" validate:"required,gt=0"`
	Latitude  *decimal.Decimal `json:"latitude,omitempty"`
	Longitude *decimal.Decimal `json:"longitude,omitempty"`
}

// ListDeliveriesRequest filters the delivery list.
type ListDeliveriesRequest struct {
	Status        *Status    `json:"status,omitempty"`
	DriverID      *int64     `json:"driver_id,omitempty"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	Limit         int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset        int        `json:"offset" validate:"gte=0"`
}
