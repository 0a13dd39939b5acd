package workflow

import (
	"context"
	"fmt"
)

// GuardFunc decides between transitions that share a trigger. The approve guards read
// the final-level flag carried by ctx.
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder holds the expense lifecycle table. NewExpenseLifecycle fills it
// once at startup and the router builds one machine per decision from it.
type StateMachineBuilder interface {
	// Configure returns the transitions leaving an expense status, creating them on first use
	Configure(state State) StateConfiguration

	// Build starts a machine at an expense's stored status, e.g. FromStatus(expense.Status)
	Build(initialState State) StateMachine
}

// StateConfiguration lists what may happen to an expense in one status: draft accepts
// SUBMIT, pending accepts APPROVE and REJECT, approved and rejected accept nothing.
type StateConfiguration interface {
	// Permit moves the expense to toState whenever trigger fires
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf moves the expense to toState when guard passes. An APPROVE registered
	// twice is tried in order, which is how the final level reaches approved while
	// earlier levels leave the expense pending.
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

type stateConfig struct {
	transitions map[Trigger][]transition
	order       []Trigger
}

type stateMachineBuilder struct {
	configurations map[State]*stateConfig
}

type stateMachine struct {
	currentState   State
	configurations map[State]*stateConfig
}

// NewBuilder returns an empty lifecycle table
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("unknown expense status: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{transitions: make(map[Trigger][]transition)}
		b.configurations[state] = config
	}
	return config
}

func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("unknown starting expense status: %s", initialState))
	}

	// a machine built for one decision never sees later Configure calls
	configs := make(map[State]*stateConfig, len(b.configurations))
	for state, config := range b.configurations {
		transitions := make(map[Trigger][]transition, len(config.transitions))
		for trigger, ts := range config.transitions {
			transitions[trigger] = append([]transition(nil), ts...)
		}
		configs[state] = &stateConfig{
			transitions: transitions,
			order:       append([]Trigger(nil), config.order...),
		}
	}

	return &stateMachine{
		currentState:   initialState,
		configurations: configs,
	}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("unknown target expense status: %s", toState))
	}

	if _, exists := c.transitions[trigger]; !exists {
		c.order = append(c.order, trigger)
	}
	c.transitions[trigger] = append(c.transitions[trigger], transition{
		toState: toState,
		guard:   guard,
	})
	return c
}

func (m *stateMachine) State() State {
	return m.currentState
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return false
	}
	return len(config.transitions[trigger]) > 0
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return fmt.Errorf("%w: expense in status %s accepts no %s", ErrInvalidTransition, m.currentState, trigger)
	}

	transitions := config.transitions[trigger]
	if len(transitions) == 0 {
		return fmt.Errorf("%w: expense in status %s cannot %s", ErrInvalidTransition, m.currentState, trigger)
	}

	for _, t := range transitions {
		if t.guard == nil || t.guard(ctx) {
			m.currentState = t.toState
			return nil
		}
	}

	return fmt.Errorf("%w: no %s transition from %s applies", ErrGuardFailed, trigger, m.currentState)
}

func (m *stateMachine) PermittedTriggers() []Trigger {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []Trigger{}
	}
	return append([]Trigger{}, config.order...)
}
