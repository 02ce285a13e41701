package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSetPending         Trigger = "SET_PENDING"
	TriggerSetFailed          Trigger = "SET_FAILED"
	TriggerAddCashCallPayment Trigger = "ADD_CASHCALL_PAYMENT"
	TriggerPublishPayIn       Trigger = "PUBLISH_PAYIN"
	TriggerSetSucceed         Trigger = "SET_SUCCEED"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
