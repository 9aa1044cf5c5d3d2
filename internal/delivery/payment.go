package delivery

import (
	"github.com/shopspring/decimal"
)

// Payment breaks down what a driver earns for one delivery.
type Payment struct {
	FlatRate        decimal.Decimal `json:"flat_rate"`
	DistancePayment decimal.Decimal `json:"distance_payment"`
	Total           decimal.Decimal `json:"total"`
}

// Earnings summarises a driver's payments over a period.
type Earnings struct {
	TotalDeliveries      int             `json:"total_deliveries"`
	TotalFlatRate        decimal.Decimal `json:"total_flat_rate"`
	TotalDistancePayment decimal.Decimal `json:"total_distance_payment"`
	TotalEarnings        decimal.Decimal `json:"total_earnings"`
}

// CalculatePayment computes the contractor payment for one delivery.
// Employees earn zero per delivery; they are on payroll.
func CalculatePayment(driver Driver, d Delivery) Payment {
	if driver.Type == DriverTypeEmployee {
		return Payment{
			FlatRate:        decimal.Zero,
			DistancePayment: decimal.Zero,
			Total:           decimal.Zero,
		}
	}
	flat := decimal.Zero
	if driver.RatePerDelivery != nil {
		flat = *driver.RatePerDelivery
	}
	distance := decimal.Zero
	if driver.RatePerKm != nil && d.DistanceKm != nil {
		distance = driver.RatePerKm.Mul(*d.DistanceKm)
	}
	return Payment{
		FlatRate:        flat,
		DistancePayment: distance,
		Total:           flat.Add(distance),
	}
}

// CalculateEarnings sums payments for a driver's delivered shipments.
func CalculateEarnings(driver Driver, delivered []Delivery) Earnings {
	out := Earnings{
		TotalFlatRate:        decimal.Zero,
		TotalDistancePayment: decimal.Zero,
		TotalEarnings:        decimal.Zero,
	}
	for _, d := range delivered {
		if d.Status != StatusDelivered {
			continue
		}
		p := CalculatePayment(driver, d)
		out.TotalDeliveries++
		out.TotalFlatRate = out.TotalFlatRate.Add(p.FlatRate)
		out.TotalDistancePayment = out.TotalDistancePayment.Add(p.DistancePayment)
	}
	out.TotalEarnings = out.TotalFlatRate.Add(out.TotalDistancePayment)
	return out
}
