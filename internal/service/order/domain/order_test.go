// internal/service/order/domain/order_test.go
package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusPending, StatusDelivered, false},
		{StatusPaid, StatusShipped, true},
		{StatusPaid, StatusCancelled, true},
		{StatusPaid, StatusDelivered, false},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusPaid, StatusPaid, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestParseStatus(t *testing.T) {
	status, ok := ParseStatus("  Shipped ")
	require.True(t, ok)
	assert.Equal(t, StatusShipped, status)

	_, ok = ParseStatus("refunded")
	assert.False(t, ok)

	_, ok = ParseStatus("")
	assert.False(t, ok)
}

func TestApplyStatusTracksCancelledAt(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	order := &Order{Status: StatusPending}

	order.ApplyStatus(StatusCancelled, now)
	require.NotNil(t, order.CancelledAt)
	assert.Equal(t, now, *order.CancelledAt)
	assert.Equal(t, now, order.UpdatedAt)

	order.ApplyStatus(StatusPaid, now.Add(time.Minute))
	assert.Nil(t, order.CancelledAt)
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "EUR", NormalizeCurrency(" eur "))
	assert.Equal(t, "USD", NormalizeCurrency(""))
	assert.Equal(t, "USD", NormalizeCurrency("dollars"))
	assert.Equal(t, "JPY", NormalizeCurrency("JPY"))
}
