package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramRegistryRegisterLookup(t *testing.T) {
	r := NewProgramRegistry()
	ran := false
	r.Register("/bin/hi", func(x *Ctx) { ran = true })

	prog, ok := r.Lookup("/bin/hi")
	require.True(t, ok)
	prog(nil)
	assert.True(t, ran)

	_, ok = r.Lookup("/bin/missing")
	assert.False(t, ok)
}

func TestBuildStackAndArgvThenArgvRoundTrips(t *testing.T) {
	x := newTestProcCtx(t, 4)

	sz, sp, argvVA, err := buildStackAndArgv(x, x.P.pagetable, []string{"echo", "hello", "world"})
	require.Equal(t, EOK, err)
	assert.Equal(t, uint64(PageSize), sz)
	assert.Less(t, sp, sz)

	x.P.trapframe = &TrapFrame{Sp: sp, Argc: 3, Argv: argvVA}
	got := x.Argv()
	assert.Equal(t, []string{"echo", "hello", "world"}, got)
}

func TestBuildStackAndArgvEmptyArgv(t *testing.T) {
	x := newTestProcCtx(t, 4)

	_, sp, argvVA, err := buildStackAndArgv(x, x.P.pagetable, nil)
	require.Equal(t, EOK, err)

	x.P.trapframe = &TrapFrame{Sp: sp, Argc: 0, Argv: argvVA}
	got := x.Argv()
	assert.Empty(t, got)
}
