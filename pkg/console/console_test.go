package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/voltgrid/pkg/cvars"
)

func newTestConsole(t *testing.T) (*Console, *cvars.Registry) {
	t.Helper()
	r := cvars.NewRegistry()
	require.NoError(t, r.Register("g_cycle_speed", 120.0))
	require.NoError(t, r.Register("d_dbg", false))
	return NewConsole(r), r
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    string
		wantErr error
	}{
		{name: "empty line", line: "", want: ""},
		{name: "whitespace only", line: "   ", want: ""},
		{name: "get", line: "g_cycle_speed", want: "g_cycle_speed = 120"},
		{name: "set", line: "g_cycle_speed 150", want: "g_cycle_speed = 150"},
		{name: "set bool", line: "d_dbg true", want: "d_dbg = true"},
		{name: "help", line: "help", want: helpText},
		{name: "help alias", line: "?", want: helpText},
		{name: "unknown command", line: "frobnicate", wantErr: &ErrUnknownCommand{}},
		{name: "unknown set target", line: "frobnicate 5", wantErr: &ErrUnknownCommand{}},
		{name: "too many words", line: "a b c", wantErr: &ErrParse{}},
		{name: "quit", line: "quit", wantErr: &ErrQuit{}},
		{name: "exit alias", line: "exit", wantErr: &ErrQuit{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestConsole(t)
			got, err := c.Execute(tc.line)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.IsType(t, tc.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSetWritesThrough(t *testing.T) {
	c, r := newTestConsole(t)

	_, err := c.Execute("g_cycle_speed 90.5")
	require.NoError(t, err)

	v, err := r.GetFloat("g_cycle_speed")
	require.NoError(t, err)
	assert.Equal(t, 90.5, v)
}

func TestSetBadValueLeavesOldValue(t *testing.T) {
	c, r := newTestConsole(t)

	_, err := c.Execute("g_cycle_speed fast")
	require.Error(t, err)

	v, err := r.GetFloat("g_cycle_speed")
	require.NoError(t, err)
	assert.Equal(t, 120.0, v)
}

func TestList(t *testing.T) {
	c, _ := newTestConsole(t)

	got, err := c.Execute("list")
	require.NoError(t, err)
	assert.Equal(t, "d_dbg = false\ng_cycle_speed = 120", got)
}
