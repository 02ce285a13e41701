package workflow

// State represents a billing lifecycle state shared by bills and cash calls
type State string

const (
	StateCreated         State = "CREATED"
	StatePending         State = "PENDING"
	StatePaid            State = "PAID"
	StatePaidIncorrectly State = "PAID_INCORRECTLY"
	StateFailed          State = "FAILED"
)

var validStates = map[State]bool{
	StateCreated:         true,
	StatePending:         true,
	StatePaid:            true,
	StatePaidIncorrectly: true,
	StateFailed:          true,
}

var terminalStates = map[State]bool{
	StatePaid:            true,
	StatePaidIncorrectly: true,
}

// IsTerminal returns true if the state closes the payment lifecycle
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}
