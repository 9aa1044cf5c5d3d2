package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from    Status
		allowed []Status
	}{
		{StatusPending, []Status{StatusAssigned}},
		{StatusAssigned, []Status{StatusPickedUp, StatusPending}},
		{StatusPickedUp, []Status{StatusOutForDelivery}},
		{StatusOutForDelivery, []Status{StatusArrived, StatusFailed}},
		{StatusArrived, []Status{StatusDelivered, StatusFailed}},
		{StatusFailed, []Status{StatusReturned, StatusAssigned}},
		{StatusDelivered, nil},
		{StatusReturned, nil},
	}

	all := []Status{
		StatusPending, StatusAssigned, StatusPickedUp, StatusOutForDelivery,
		StatusArrived, StatusDelivered, StatusFailed, StatusReturned,
	}

	for _, tc := range cases {
		t.Run(string(tc.from), func(t *testing.T) {
			allowed := make(map[Status]bool, len(tc.allowed))
			for _, s := range tc.allowed {
				allowed[s] = true
			}
			for _, target := range all {
				assert.Equal(t, allowed[target], tc.from.CanTransitionTo(target),
					"%s -> %s", tc.from, target)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusReturned.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusFailed.IsTerminal())
}

func TestStatusIsValid(t *testing.T) {
	assert.True(t, StatusOutForDelivery.IsValid())
	assert.False(t, Status("shipped").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestInvalidTransitionErrorMessage(t *testing.T) {
	err := &InvalidTransitionError{From: StatusPending, To: StatusDelivered}
	assert.EqualError(t, err, "delivery: cannot transition from pending to delivered")
}

func TestAllowedTransitionsCopies(t *testing.T) {
	first := StatusPending.AllowedTransitions()
	first[0] = StatusReturned
	assert.Equal(t, []Status{StatusAssigned}, StatusPending.AllowedTransitions())
}
