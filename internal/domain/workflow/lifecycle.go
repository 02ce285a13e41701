package workflow

// Bill transition table:
//
//	SET_PENDING           CREATED|FAILED|PENDING                  -> PENDING
//	SET_FAILED            CREATED|FAILED|PENDING|PAID_INCORRECTLY -> FAILED
//	ADD_CASHCALL_PAYMENT  any                                     -> PAID|PAID_INCORRECTLY (effect decides)
var billStates = []State{StateCreated, StatePending, StatePaid, StatePaidIncorrectly, StateFailed}

// CashCall transition table:
//
//	SET_PENDING    CREATED|FAILED|PENDING -> PENDING
//	SET_FAILED     CREATED|FAILED|PENDING -> FAILED
//	PUBLISH_PAYIN  CREATED|FAILED         -> PENDING|FAILED (effect decides, FAILED on error)
//	SET_SUCCEED    any                    -> PAID
var cashCallStates = []State{StateCreated, StatePending, StatePaid, StateFailed}

// NewBillMachine returns a machine positioned at the bill's stored status
func NewBillMachine(current State) StateMachine {
	b := NewBuilder()

	b.ConfigureEach(StateCreated, StateFailed, StatePending).
		Permit(TriggerSetPending, StatePending)

	b.ConfigureEach(StateCreated, StateFailed, StatePending, StatePaidIncorrectly).
		Permit(TriggerSetFailed, StateFailed)

	b.ConfigureEach(billStates...).
		PermitDynamic(TriggerAddCashCallPayment, nil, StatePaid, StatePaidIncorrectly)

	return b.Build(current)
}

// NewCashCallMachine returns a machine positioned at the cash call's stored status.
// canPublish gates PUBLISH_PAYIN; nil permits it unconditionally.
func NewCashCallMachine(current State, canPublish GuardFunc) StateMachine {
	b := NewBuilder()

	b.ConfigureEach(StateCreated, StateFailed, StatePending).
		Permit(TriggerSetPending, StatePending).
		Permit(TriggerSetFailed, StateFailed)

	b.ConfigureEach(StateCreated, StateFailed).
		PermitDynamic(TriggerPublishPayIn, canPublish, StatePending, StateFailed).
		OnError(TriggerPublishPayIn, StateFailed)

	b.ConfigureEach(cashCallStates...).
		Permit(TriggerSetSucceed, StatePaid)

	return b.Build(current)
}
