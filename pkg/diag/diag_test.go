package diag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerAccumulatesAndHasErrors(t *testing.T) {
	h := NewHandler(nil)
	require.False(t, h.HasErrors())

	h.Emit(Diagnostic{Severity: Warning, Message: "heads up"})
	require.False(t, h.HasErrors())

	h.Errorf(Span{File: "a.mir", Line: 1, Column: 2}, "bad thing: %d", 3)
	require.True(t, h.HasErrors())
	require.Len(t, h.Diagnostics(), 2)
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{
		Severity: Error,
		Message:  "type mismatch",
		Primary:  Label{Span: Span{File: "a.mir", Line: 4, Column: 1}, Message: "here"},
		Secondary: []Label{
			{Span: Span{File: "a.mir", Line: 1, Column: 1}, Message: "declared here"},
		},
		Help: "check the signature",
	}
	s := d.String()
	require.Contains(t, s, "error: type mismatch")
	require.Contains(t, s, "a.mir:4:1")
	require.Contains(t, s, "here")
	require.Contains(t, s, "declared here")
	require.Contains(t, s, "help: check the signature")
}

func TestSpanStringUnknown(t *testing.T) {
	require.Equal(t, "<unknown>", Span{}.String())
}

func TestSeverityStrings(t *testing.T) {
	require.Equal(t, "bug", Bug.String())
	require.Equal(t, "error", Error.String())
	require.Equal(t, "warning", Warning.String())
	require.Equal(t, "note", Note.String())
	require.Equal(t, "help", Help.String())
}
