package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nullEngine struct{}

func (nullEngine) Call(string, []any) (any, error)        { return nil, nil }
func (nullEngine) HandleInput(string, map[string]any)     {}
func (nullEngine) HandleData([]byte)                      {}
func (nullEngine) HandleBinary([]byte)                    {}
func (nullEngine) Configure(string, any)                  {}
func (nullEngine) TickFrame(time.Time, []byte) (int, bool, error) {
	return 0, false, nil
}

func TestRegistryLoad(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Load("missing")
	assert.Error(t, err)

	mod := &StaticModule{
		Constructors: map[string]Factory{
			"null": func() (Engine, error) { return nullEngine{}, nil },
		},
	}
	reg.Register("viz", mod)

	loaded, err := reg.Load("viz")
	require.NoError(t, err)
	assert.Same(t, Module(mod), loaded)

	// Re-register replaces
	other := &StaticModule{}
	reg.Register("viz", other)
	loaded, err = reg.Load("viz")
	require.NoError(t, err)
	assert.Same(t, Module(other), loaded)
}

func TestStaticModule(t *testing.T) {
	initCalls := 0
	mod := &StaticModule{
		InitFunc: func() error {
			initCalls++
			return nil
		},
		Constructors: map[string]Factory{
			"null": func() (Engine, error) { return nullEngine{}, nil },
		},
	}

	require.NoError(t, mod.Init())
	assert.Equal(t, 1, initCalls)

	factory, err := mod.Constructor("null")
	require.NoError(t, err)
	eng, err := factory()
	require.NoError(t, err)
	assert.NotNil(t, eng)

	_, err = mod.Constructor("missing")
	assert.Error(t, err)

	failing := &StaticModule{InitFunc: func() error { return fmt.Errorf("boom") }}
	assert.Error(t, failing.Init())

	empty := &StaticModule{}
	assert.NoError(t, empty.Init(), "nil init hook is fine")
}
