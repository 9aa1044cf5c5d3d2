package delivery

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCalculatePaymentContractor(t *testing.T) {
	driver := Driver{
		Type:            DriverTypeContractor,
		RatePerDelivery: dec("50.00"),
		RatePerKm:       dec("3.50"),
	}
	p := CalculatePayment(driver, Delivery{DistanceKm: dec("12.4")})

	assert.True(t, p.FlatRate.Equal(decimal.RequireFromString("50.00")))
	assert.True(t, p.DistancePayment.Equal(decimal.RequireFromString("43.40")))
	assert.True(t, p.Total.Equal(decimal.RequireFromString("93.40")))
}

func TestCalculatePaymentEmployeeIsZero(t *testing.T) {
	driver := Driver{
		Type:            DriverTypeEmployee,
		RatePerDelivery: dec("50.00"),
		RatePerKm:       dec("3.50"),
	}
	p := CalculatePayment(driver, Delivery{DistanceKm: dec("12.4")})

	assert.True(t, p.Total.IsZero())
}

func TestCalculatePaymentNoDistance(t *testing.T) {
	driver := Driver{Type: DriverTypeContractor, RatePerDelivery: dec("50.00"), RatePerKm: dec("3.50")}
	p := CalculatePayment(driver, Delivery{})

	assert.True(t, p.DistancePayment.IsZero())
	assert.True(t, p.Total.Equal(decimal.RequireFromString("50.00")))
}

func TestCalculateEarningsOnlyCountsDelivered(t *testing.T) {
	driver := Driver{Type: DriverTypeContractor, RatePerDelivery: dec("50.00"), RatePerKm: dec("2.00")}
	deliveries := []Delivery{
		{Status: StatusDelivered, DistanceKm: dec("10")},
		{Status: StatusDelivered, DistanceKm: dec("5")},
		{Status: StatusFailed, DistanceKm: dec("8")},
		{Status: StatusReturned},
	}

	e := CalculateEarnings(driver, deliveries)

	assert.Equal(t, 2, e.TotalDeliveries)
	assert.True(t, e.TotalFlatRate.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, e.TotalDistancePayment.Equal(decimal.RequireFromString("30.00")))
	assert.True(t, e.TotalEarnings.Equal(decimal.RequireFromString("130.00")))
}
