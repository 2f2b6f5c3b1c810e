package streamtexture

import (
	"fmt"
	"log/slog"
	"sync"
)

var transitions = map[PipelineState][]PipelineState{
	StateNull:    {StateReady},
	StateReady:   {StatePaused, StateError, StateNull},
	StatePaused:  {StatePlaying, StateError, StateNull},
	StatePlaying: {StateError, StateNull},
	StateError:   {StateNull},
}

// stateMachine guards PipelineState. Forward moves go one step at a time,
// Error is reachable from any live state and always leads back to Null.
type stateMachine struct {
	mu    sync.Mutex
	state PipelineState
}

func (m *stateMachine) get() PipelineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// move applies to. Moving to the current state is a no-op.
func (m *stateMachine) move(to PipelineState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == to {
		return nil
	}
	for _, allowed := range transitions[m.state] {
		if allowed == to {
			slog.Debug("stream-texture: state", "from", m.state.String(), "to", to.String())
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("stream-texture: invalid transition %s -> %s", m.state, to)
}
