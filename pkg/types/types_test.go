package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeAndAlign(t *testing.T) {
	require.Equal(t, uint32(4), Bool{}.SizeBytes())
	require.Equal(t, uint32(4), I32().SizeBytes())
	require.Equal(t, uint32(8), I64().SizeBytes())
	require.Equal(t, uint32(16), I128().SizeBytes())
	require.Equal(t, uint32(32), U256{}.SizeBytes())
	require.Equal(t, uint32(4), Felt{}.SizeBytes())
	require.Equal(t, uint32(8), F64{}.SizeBytes())
	require.Equal(t, uint32(PointerSize), Ptr{Pointee: U32()}.SizeBytes())

	require.Equal(t, uint32(32), U256{}.Align())
	require.Equal(t, uint32(8), I64().Align())
	require.Equal(t, uint32(16), I128().Align())
}

func TestArraySizeAndAlign(t *testing.T) {
	arr := Array{Elem: U32(), Len: 5}
	require.Equal(t, uint32(20), arr.SizeBytes())
	require.Equal(t, uint32(4), arr.Align())
}

func TestStructLayoutWithPadding(t *testing.T) {
	// {u8, u64, u16} should pad u8 up to the u64's 8-byte alignment,
	// then pad the trailing u16 so the overall size is a multiple of
	// the struct's max field alignment (8).
	s := Struct{
		Fields: []Field{
			{Name: "a", Type: U8()},
			{Name: "b", Type: U64()},
			{Name: "c", Type: U16()},
		},
	}
	require.Equal(t, uint32(0), s.FieldOffset(0))
	require.Equal(t, uint32(8), s.FieldOffset(1))
	require.Equal(t, uint32(16), s.FieldOffset(2))
	require.Equal(t, uint32(8), s.Align())
	require.Equal(t, uint32(24), s.SizeBytes())
}

func TestStructFieldOffsetOutOfRangePanics(t *testing.T) {
	s := Struct{Fields: []Field{{Name: "a", Type: U32()}}}
	require.Panics(t, func() { s.FieldOffset(5) })
}

func TestFunctionTypeHasNoSize(t *testing.T) {
	fn := Function{Sig: &Signature{}}
	require.Panics(t, func() { fn.SizeBytes() })
}

func TestEqual(t *testing.T) {
	require.True(t, Equal(U32(), Int{Width: 32, Signed: false}))
	require.False(t, Equal(U32(), I32()))
	require.False(t, Equal(U32(), U64()))
	require.True(t, Equal(Ptr{Pointee: U32()}, Ptr{Pointee: U32()}))
	require.False(t, Equal(Ptr{Pointee: U32()}, Ptr{Pointee: I32()}))
	require.True(t, Equal(Array{Elem: U8(), Len: 3}, Array{Elem: U8(), Len: 3}))
	require.False(t, Equal(Array{Elem: U8(), Len: 3}, Array{Elem: U8(), Len: 4}))

	sa := Struct{Fields: []Field{{Name: "x", Type: U32()}}}
	sb := Struct{Fields: []Field{{Name: "x", Type: U32()}}}
	sc := Struct{Fields: []Field{{Name: "y", Type: U32()}}}
	require.True(t, Equal(sa, sb))
	require.False(t, Equal(sa, sc))
}

func TestSignatureEqualAndExtend(t *testing.T) {
	a := &Signature{Params: []Param{{Type: U32()}}, Results: []Param{{Type: U32()}}}
	b := &Signature{Params: []Param{{Type: U32()}}, Results: []Param{{Type: U32()}}}
	require.True(t, SignatureEqual(a, b))

	c := &Signature{CC: CCKernel, Params: []Param{{Type: U32()}}, Results: []Param{{Type: U32()}}}
	require.False(t, SignatureEqual(a, c))

	require.True(t, ExtendCompatible(ExtendNone, ExtendNone))
	require.False(t, ExtendCompatible(ExtendNone, ExtendZext))
	require.True(t, ExtendCompatible(ExtendZext, ExtendZext))
	require.False(t, ExtendCompatible(ExtendSext, ExtendZext))
}

func TestStringForms(t *testing.T) {
	require.Equal(t, "u32", U32().String())
	require.Equal(t, "i64", I64().String())
	require.Equal(t, "u256", U256{}.String())
	require.Equal(t, "felt", Felt{}.String())
	require.Equal(t, "f64", F64{}.String())
	require.Equal(t, "*u32", Ptr{Pointee: U32()}.String())
	require.Equal(t, "[u8; 4]", Array{Elem: U8(), Len: 4}.String())
}

func TestCallConvAndLinkageStrings(t *testing.T) {
	require.Equal(t, "fast", CCFast.String())
	require.Equal(t, "kernel", CCKernel.String())
	require.Equal(t, "public", LinkagePublic.String())
	require.Equal(t, "private", LinkagePrivate.String())
	require.Equal(t, "odr", LinkageOdr.String())
}
