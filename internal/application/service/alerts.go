package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/dispatcher"
	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/event"
)

// alertTitles are the events operators must look at
var alertTitles = map[event.Type]string{
	event.TypeBillPaidIncorrectly:  "Bill %d paid with a different amount",
	event.TypeCashCallFailed:       "Cash call %d failed",
	event.TypeInvoiceGenerationErr: "Invoice generation failed for bill %d",
}

// RegisterAlerts forwards events needing manual review to the operator channel.
// Alert failures are logged and never fail the dispatch.
func RegisterAlerts(d dispatcher.Dispatcher, alerter port.OperatorAlerter, logger *zap.Logger) {
	if alerter == nil {
		return
	}

	types := make([]event.Type, 0, len(alertTitles))
	for t := range alertTitles {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, t := range types {
		d.SubscribeNamed(t, "operator-alert", func(ctx context.Context, evt *event.Event) error {
			title, lines := alertMessage(evt)
			if err := alerter.Alert(ctx, title, lines); err != nil {
				logger.Warn("Failed to alert operators",
					zap.String("event_type", evt.Type.String()),
					zap.Int64("bill_id", evt.BillID),
					zap.Error(err))
			}
			return nil
		})
	}
}

func alertMessage(evt *event.Event) (string, []string) {
	subject := evt.BillID
	if evt.Type == event.TypeCashCallFailed {
		subject = evt.CashCallID
	}
	title := fmt.Sprintf(alertTitles[evt.Type], subject)

	lines := []string{
		fmt.Sprintf("bill: %d", evt.BillID),
	}
	if evt.CashCallID != 0 {
		lines = append(lines, fmt.Sprintf("cash call: %d", evt.CashCallID))
	}

	keys := make([]string, 0, len(evt.Payload))
	for k := range evt.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, evt.Payload[k]))
	}
	return title, lines
}
