package hir

import (
	"testing"

	"github.com/feltvm/feltc/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestModuleAddAndFindFunction(t *testing.T) {
	m := NewModule("mymod")
	require.Equal(t, "mymod", m.Name)

	fn := NewFunction(FunctionIdent{Module: "mymod", Function: "foo"}, simpleSig())
	m.AddFunction(fn)

	found := m.FindFunction("foo")
	require.NotNil(t, found)
	require.Equal(t, fn, found)
	require.Nil(t, m.FindFunction("bar"))
}

func TestModuleAddAndFindGlobal(t *testing.T) {
	m := NewModule("mymod")
	g := &GlobalVariable{
		Name: GlobalIdent{Module: "mymod", Name: "counter"},
		Type: types.U32(),
	}
	m.AddGlobal(g)

	found := m.FindGlobal("counter")
	require.NotNil(t, found)
	require.Equal(t, g, found)
	require.Nil(t, m.FindGlobal("missing"))
}

func TestFunctionIdentAndGlobalIdentStrings(t *testing.T) {
	fi := FunctionIdent{Module: "mod", Function: "fn"}
	require.Equal(t, "mod::fn", fi.String())

	gi := GlobalIdent{Module: "mod", Name: "g"}
	require.Equal(t, "mod::g", gi.String())

	promoted := GlobalIdent{Name: "g"}
	require.Equal(t, "g", promoted.String())
}
