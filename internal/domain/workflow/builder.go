package workflow

import (
	"context"
	"fmt"
)

// GuardFunc is a function that evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// Effect is the side effect of a transition. It returns the state the transition
// resolved to; an empty state keeps the configured target.
type Effect func(ctx context.Context) (State, error)

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// ConfigureEach returns a configuration applied to every given state
	ConfigureEach(states ...State) StateConfiguration

	// Build creates a new state machine instance with the given initial state
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to transition to the target state if the guard condition passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration

	// PermitDynamic allows a trigger whose target is chosen by the effect among targets
	PermitDynamic(trigger Trigger, guard GuardFunc, targets ...State) StateConfiguration

	// OnError sets the state entered when the trigger's effect fails
	OnError(trigger Trigger, state State) StateConfiguration
}

// transition represents a state transition with optional guard
type transition struct {
	toState State
	targets []State
	guard   GuardFunc
}

func (t transition) dynamic() bool {
	return len(t.targets) > 0
}

func (t transition) allows(state State) bool {
	for _, target := range t.targets {
		if target == state {
			return true
		}
	}
	return false
}

// stateConfig implements StateConfiguration
type stateConfig struct {
	fromState   State
	transitions map[Trigger][]transition
	onError     map[Trigger]State
}

// multiConfig fans a configuration out to several states
type multiConfig []*stateConfig

// stateMachineBuilder implements StateMachineBuilder
type stateMachineBuilder struct {
	configurations map[State]*stateConfig
}

// stateMachine implements StateMachine
type stateMachine struct {
	currentState   State
	configurations map[State]*stateConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	return b.configure(state)
}

func (b *stateMachineBuilder) configure(state State) *stateConfig {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Trigger][]transition),
			onError:     make(map[Trigger]State),
		}
		b.configurations[state] = config
	}

	return config
}

// ConfigureEach returns a configuration applied to every given state
func (b *stateMachineBuilder) ConfigureEach(states ...State) StateConfiguration {
	configs := make(multiConfig, 0, len(states))
	for _, state := range states {
		configs = append(configs, b.configure(state))
	}
	return configs
}

// Build creates a new state machine instance with the given initial state
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	// Deep copy configurations so machines never share mutable tables
	configsCopy := make(map[State]*stateConfig)
	for state, config := range b.configurations {
		transitionsCopy := make(map[Trigger][]transition)
		for trigger, transitions := range config.transitions {
			transitionsCopy[trigger] = append([]transition{}, transitions...)
		}
		onErrorCopy := make(map[Trigger]State, len(config.onError))
		for trigger, s := range config.onError {
			onErrorCopy[trigger] = s
		}
		configsCopy[state] = &stateConfig{
			fromState:   state,
			transitions: transitionsCopy,
			onError:     onErrorCopy,
		}
	}

	return &stateMachine{
		currentState:   initialState,
		configurations: configsCopy,
	}
}

// Permit allows a trigger to transition to the target state
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows a trigger to transition to the target state if the guard condition passes
func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition{
		toState: toState,
		guard:   guard,
	})

	return c
}

// PermitDynamic allows a trigger whose target is chosen by the effect among targets
func (c *stateConfig) PermitDynamic(trigger Trigger, guard GuardFunc, targets ...State) StateConfiguration {
	if len(targets) == 0 {
		panic(fmt.Sprintf("dynamic transition %s needs at least one target", trigger))
	}
	for _, target := range targets {
		if !target.IsValid() {
			panic(fmt.Sprintf("invalid target state: %s", target))
		}
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition{
		targets: append([]State{}, targets...),
		guard:   guard,
	})

	return c
}

// OnError sets the state entered when the trigger's effect fails
func (c *stateConfig) OnError(trigger Trigger, state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid error state: %s", state))
	}
	c.onError[trigger] = state
	return c
}

func (m multiConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	for _, c := range m {
		c.Permit(trigger, toState)
	}
	return m
}

func (m multiConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	for _, c := range m {
		c.PermitIf(trigger, toState, guard)
	}
	return m
}

func (m multiConfig) PermitDynamic(trigger Trigger, guard GuardFunc, targets ...State) StateConfiguration {
	for _, c := range m {
		c.PermitDynamic(trigger, guard, targets...)
	}
	return m
}

func (m multiConfig) OnError(trigger Trigger, state State) StateConfiguration {
	for _, c := range m {
		c.OnError(trigger, state)
	}
	return m
}

// State returns the current state
func (m *stateMachine) State() State {
	return m.currentState
}

// CanFire returns true if the trigger is permitted in the current state.
// Guards are not evaluated.
func (m *stateMachine) CanFire(trigger Trigger) bool {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return false
	}

	transitions, exists := config.transitions[trigger]
	return exists && len(transitions) > 0
}

// Fire attempts to execute the trigger, transitioning to the new state if allowed
func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	return m.FireWith(ctx, trigger, nil)
}

// FireWith executes the trigger and its effect. The state only changes after the
// effect succeeds, unless an error state was configured for the trigger.
func (m *stateMachine) FireWith(ctx context.Context, trigger Trigger, effect Effect) error {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s (no configuration)", ErrInvalidTransition, trigger, m.currentState)
	}

	transitions, exists := config.transitions[trigger]
	if !exists || len(transitions) == 0 {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.currentState)
	}

	for _, t := range transitions {
		if t.guard != nil && !t.guard(ctx) {
			continue
		}

		var resolved State
		if effect != nil {
			var err error
			resolved, err = effect(ctx)
			if err != nil {
				if fallback, ok := config.onError[trigger]; ok {
					m.currentState = fallback
				}
				return err
			}
		}

		switch {
		case t.dynamic():
			if !t.allows(resolved) {
				return fmt.Errorf("%w: trigger %s resolved to %q", ErrUnexpectedTarget, trigger, resolved)
			}
			m.currentState = resolved
		case resolved == "" || resolved == t.toState:
			m.currentState = t.toState
		default:
			return fmt.Errorf("%w: trigger %s resolved to %s, want %s", ErrUnexpectedTarget, trigger, resolved, t.toState)
		}
		return nil
	}

	// All guards failed
	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.currentState)
}

// PermittedTriggers returns all triggers that can be fired in the current state
func (m *stateMachine) PermittedTriggers() []Trigger {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.transitions))
	for trigger := range config.transitions {
		triggers = append(triggers, trigger)
	}

	return triggers
}
