package domain_test

import (
	"testing"
	"time"

	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePurchaseOrderStatus(t *testing.T) {
	tests := []struct {
		in   string
		want domain.PurchaseOrderStatus
	}{
		{"", domain.PurchaseStatusIssued},
		{"po issued", domain.PurchaseStatusIssued},
		{" IN-TRANSIT ", domain.PurchaseStatusInTransit},
		{"arrived", domain.PurchaseStatusArrived},
		{"Obsoleted", domain.PurchaseStatusObsoleted},
		{"etc", domain.PurchaseStatusOther},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := domain.ParsePurchaseOrderStatus(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := domain.ParsePurchaseOrderStatus("lost")
	assert.Error(t, err)
}

func TestPurchaseOrder_Urgency(t *testing.T) {
	today := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	at := func(day int) *time.Time {
		d := time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)
		return &d
	}

	tests := []struct {
		name   string
		status domain.PurchaseOrderStatus
		eta    *time.Time
		want   string
	}{
		{"past eta", domain.PurchaseStatusIssued, at(9), domain.UrgencyDelayed},
		{"due today", domain.PurchaseStatusInTransit, at(10), domain.UrgencyImminent},
		{"due on the last imminent day", domain.PurchaseStatusIssued, at(13), domain.UrgencyImminent},
		{"due later", domain.PurchaseStatusIssued, at(14), ""},
		{"no eta", domain.PurchaseStatusIssued, nil, ""},
		{"arrived late", domain.PurchaseStatusArrived, at(1), ""},
		{"obsoleted", domain.PurchaseStatusObsoleted, at(1), ""},
		{"other status still tracked", domain.PurchaseStatusOther, at(1), domain.UrgencyDelayed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			po := &domain.PurchaseOrder{Status: tt.status, ETA: tt.eta}
			assert.Equal(t, tt.want, po.Urgency(today))
		})
	}
}

func TestPurchaseOrderNumber(t *testing.T) {
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "PO-20250310-", domain.PurchaseOrderPrefix(date))
	assert.Equal(t, "PO-20250310-007", domain.FormatPurchaseOrderNumber(date, 7))
	assert.Equal(t, "PO-20250310-1000", domain.FormatPurchaseOrderNumber(date, 1000))

	seq, err := domain.PurchaseOrderSequence("PO-20250310-042")
	require.NoError(t, err)
	assert.Equal(t, 42, seq)

	_, err = domain.PurchaseOrderSequence("PO-20250310-x")
	assert.Error(t, err)
	_, err = domain.PurchaseOrderSequence("garbage")
	assert.Error(t, err)
}
