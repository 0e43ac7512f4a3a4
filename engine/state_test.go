package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		wantErr bool
	}{
		{"created to starting", StateCreated, StateStarting, false},
		{"created to running", StateCreated, StateRunning, true},
		{"created to stopped", StateCreated, StateStopped, true},
		{"starting to running", StateStarting, StateRunning, false},
		{"starting to failed", StateStarting, StateFailed, false},
		{"starting to stopping", StateStarting, StateStopping, true},
		{"running to stopping", StateRunning, StateStopping, false},
		{"running to stopped", StateRunning, StateStopped, false},
		{"running to failed", StateRunning, StateFailed, false},
		{"running to starting", StateRunning, StateStarting, true},
		{"stopping to stopped", StateStopping, StateStopped, false},
		{"stopping to failed", StateStopping, StateFailed, false},
		{"stopping to running", StateStopping, StateRunning, true},
		{"failed to stopping", StateFailed, StateStopping, false},
		{"failed to stopped", StateFailed, StateStopped, false},
		{"failed to running", StateFailed, StateRunning, true},
		{"stopped is terminal", StateStopped, StateStarting, true},
		{"stopped to running", StateStopped, StateRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := &stateMachine{state: tt.from}
			err := sm.Transition(tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.from, sm.State())
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.to, sm.State())
			}
		})
	}
}

func TestStateMachineStartsCreated(t *testing.T) {
	sm := newStateMachine()
	assert.True(t, sm.Is(StateCreated))
	assert.False(t, sm.Is(StateRunning))
}
