package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateText(t *testing.T) {
	tests := []struct {
		state    State
		name     string
		text     string
		updating bool
	}{
		{Starting, "starting", "Starting...", false},
		{CheckingForUpdates, "checking_for_updates", "Updating...", true},
		{Building, "building", "Updating...", true},
		{Launching, "launching", "Updating...", true},
		{Running, "running", "Running...", false},
		{Crashed, "crashed", "Server has crashed. Please restart.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.state.String())
			assert.Equal(t, tt.text, tt.state.Text())
			assert.Equal(t, tt.updating, tt.state.Updating())
		})
	}
}

func TestCycleFinishesOnce(t *testing.T) {
	c := newCycle()
	assert.Equal(t, OutcomePending, c.Outcome())
	assert.True(t, c.finish(OutcomeRunning, nil))
	assert.False(t, c.finish(OutcomeAbandoned, nil))
	assert.Equal(t, OutcomeRunning, c.Outcome())
	<-c.Ready()
	<-c.Done()
	assert.NotEmpty(t, c.ID)
}
