package event

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		eventType Type
		want      bool
	}{
		{TypeBillUpdated, true},
		{TypeBillPaidIncorrectly, true},
		{TypeCashCallFailed, true},
		{TypeInvoiceGenerationErr, true},
		{Type("bill.deleted"), false},
		{Type(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.IsValid())
		})
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeCashCallPaid, 10, 20, map[string]interface{}{"payin_id": "p-1"})

	_, err := uuid.Parse(evt.ID)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, evt.CorrelationID)
	assert.Equal(t, int64(10), evt.BillID)
	assert.Equal(t, int64(20), evt.CashCallID)
	assert.Equal(t, "p-1", evt.GetPayloadString("payin_id"))
	assert.False(t, evt.Timestamp.IsZero())
}

func TestEvent_WithPayloadDoesNotMutate(t *testing.T) {
	original := NewEvent(TypeBillUpdated, 1, 0, map[string]interface{}{"amount_due": "100"})
	updated := original.WithPayload("cashcalls_synced", 2)

	assert.Equal(t, int64(2), updated.GetPayloadInt("cashcalls_synced"))
	assert.Equal(t, int64(0), original.GetPayloadInt("cashcalls_synced"))
	assert.Equal(t, original.ID, updated.ID)
}

func TestEvent_WithCorrelation(t *testing.T) {
	parent := NewEvent(TypeCashCallPublished, 1, 2, nil)
	child := NewEvent(TypeInvoiceGenerated, 1, 2, nil).WithCorrelation(parent.CorrelationID)

	assert.Equal(t, parent.CorrelationID, child.CorrelationID)
	assert.NotEqual(t, parent.ID, child.ID)
}
