// internal/service/inventory/domain/stock_test.go
package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAvailableQuantityClampsAtZero(t *testing.T) {
	item := &StockItem{TotalQuantity: 10, ReservedQuantity: 4}
	assert.Equal(t, 6, item.AvailableQuantity())

	item.ReservedQuantity = 10
	assert.Equal(t, 0, item.AvailableQuantity())

	// reserved 超过 total 属于数据异常，对外不暴露负数
	item.ReservedQuantity = 12
	assert.Equal(t, 0, item.AvailableQuantity())
}

func TestReservationIsExpired(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&Reservation{ExpiresAt: &past}).IsExpired(now))
	assert.True(t, (&Reservation{ExpiresAt: &now}).IsExpired(now))
	assert.False(t, (&Reservation{ExpiresAt: &future}).IsExpired(now))
	assert.False(t, (&Reservation{}).IsExpired(now))
}

func TestNormalizeReleaseReason(t *testing.T) {
	assert.Equal(t, ReasonManualRelease, NormalizeReleaseReason("   ", ReasonManualRelease))
	assert.Equal(t, "customer request", NormalizeReleaseReason("  customer request ", ReasonManualRelease))

	long := strings.Repeat("r", 200)
	assert.Len(t, NormalizeReleaseReason(long, ReasonManualRelease), 80)
}
