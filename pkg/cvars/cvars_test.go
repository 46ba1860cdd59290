package cvars

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("g_speed", 120.0))
	require.NoError(t, r.Register("sv_tick_rate", 60))
	require.NoError(t, r.Register("d_dbg", false))
	require.NoError(t, r.Register("sv_motd", "welcome"))

	f, err := r.GetFloat("g_speed")
	require.NoError(t, err)
	assert.Equal(t, 120.0, f)

	i, err := r.GetInt("sv_tick_rate")
	require.NoError(t, err)
	assert.Equal(t, int64(60), i)

	b, err := r.GetBool("d_dbg")
	require.NoError(t, err)
	assert.False(t, b)

	s, err := r.GetString("sv_motd")
	require.NoError(t, err)
	assert.Equal(t, "welcome", s)
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("g_speed", 120.0))

	err := r.Register("g_speed", 240.0)
	require.Error(t, err)
	assert.IsType(t, &ErrDuplicateName{}, err)
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.GetFloat("g_missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	err = r.Set("g_missing", 1.0)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRegistry_Set(t *testing.T) {
	tests := []struct {
		name      string
		register  func(r *Registry) error
		set       func(r *Registry) error
		wantErr   interface{}
		wantValue func(t *testing.T, r *Registry)
	}{
		{
			name:     "get after set returns the new value",
			register: func(r *Registry) error { return r.Register("g_speed", 120.0) },
			set:      func(r *Registry) error { return r.Set("g_speed", 90.0) },
			wantValue: func(t *testing.T, r *Registry) {
				f, err := r.GetFloat("g_speed")
				require.NoError(t, err)
				assert.Equal(t, 90.0, f)
			},
		},
		{
			name:     "type mismatch leaves the prior value",
			register: func(r *Registry) error { return r.Register("g_speed", 120.0) },
			set:      func(r *Registry) error { return r.Set("g_speed", "fast") },
			wantErr:  &ErrTypeMismatch{},
			wantValue: func(t *testing.T, r *Registry) {
				f, err := r.GetFloat("g_speed")
				require.NoError(t, err)
				assert.Equal(t, 120.0, f)
			},
		},
		{
			name: "out of range leaves the prior value",
			register: func(r *Registry) error {
				return r.Register("sv_tick_rate", 60, WithRange(1, 240))
			},
			set:     func(r *Registry) error { return r.Set("sv_tick_rate", 1000) },
			wantErr: &ErrOutOfRange{},
			wantValue: func(t *testing.T, r *Registry) {
				i, err := r.GetInt("sv_tick_rate")
				require.NoError(t, err)
				assert.Equal(t, int64(60), i)
			},
		},
		{
			name: "custom validator rejects and rolls back",
			register: func(r *Registry) error {
				return r.Register("sv_motd", "hello", WithValidator(func(v interface{}) error {
					if len(v.(string)) > 8 {
						return fmt.Errorf("too long")
					}
					return nil
				}))
			},
			set:     func(r *Registry) error { return r.Set("sv_motd", "this is way too long") },
			wantErr: &ErrOutOfRange{},
			wantValue: func(t *testing.T, r *Registry) {
				s, err := r.GetString("sv_motd")
				require.NoError(t, err)
				assert.Equal(t, "hello", s)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			require.NoError(t, tt.register(r))
			err := tt.set(r)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.IsType(t, tt.wantErr, err)
			} else {
				require.NoError(t, err)
			}
			tt.wantValue(t, r)
		})
	}
}

func TestRegistry_SetString(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("d_dbg", false))
	require.NoError(t, r.Register("sv_tick_rate", 60, WithRange(1, 240)))
	require.NoError(t, r.Register("g_speed", 120.0))

	require.NoError(t, r.SetString("d_dbg", "true"))
	b, err := r.GetBool("d_dbg")
	require.NoError(t, err)
	assert.True(t, b)

	require.NoError(t, r.SetString("sv_tick_rate", "30"))
	i, err := r.GetInt("sv_tick_rate")
	require.NoError(t, err)
	assert.Equal(t, int64(30), i)

	require.NoError(t, r.SetString("g_speed", "55.5"))
	f, err := r.GetFloat("g_speed")
	require.NoError(t, err)
	assert.Equal(t, 55.5, f)

	err = r.SetString("sv_tick_rate", "fast")
	require.Error(t, err)
	assert.IsType(t, &ErrTypeMismatch{}, err)
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("g_speed", 120.0, Replicated()))
	require.NoError(t, r.Register("d_dbg", false))

	infos := r.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "d_dbg", infos[0].Name)
	assert.Equal(t, "g_speed", infos[1].Name)
	assert.True(t, infos[1].Replicated)
	assert.False(t, infos[0].Replicated)
}

func TestRegistry_ApplyArgs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterDefaults(r))

	require.NoError(t, r.ApplyArgs([]string{DExitAfterOneFrame, "true", SvTickRate, "30"}))

	b, err := r.GetBool(DExitAfterOneFrame)
	require.NoError(t, err)
	assert.True(t, b)

	i, err := r.GetInt(SvTickRate)
	require.NoError(t, err)
	assert.Equal(t, int64(30), i)

	assert.Error(t, r.ApplyArgs([]string{"dangling"}))
	assert.Error(t, r.ApplyArgs([]string{"g_no_such_cvar", "1"}))
}

func TestRegisterDefaults_Replication(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterDefaults(r))

	assert.True(t, r.IsReplicated(GCycleSpeed))
	assert.False(t, r.IsReplicated(SvTimeoutTicks))
	assert.False(t, r.IsReplicated("g_no_such_cvar"))
}
