// Package diag implements the diagnostic surface described in spec §7:
// structured diagnostics with severity, a primary span, any number of
// secondary spans, and free-form help text. A Handler is the injected
// collaborator a pass reports through; validation failures accumulate
// in the current pass before the pass aborts, per §7 error kind 2.
package diag

import (
	"fmt"

	"go.uber.org/zap"
)

// Span is a source location. Front-ends populate it; the core treats it
// as an opaque token that round-trips through the IR and into emitted
// ASM for downstream debugger use (§6 "ASM wire format").
type Span struct {
	File   string
	Line   int
	Column int
}

func (s Span) String() string {
	if s.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

// Severity classifies a Diagnostic.
type Severity uint8

const (
	Note Severity = iota
	Help
	Warning
	Error
	Bug
)

func (s Severity) String() string {
	switch s {
	case Note:
		return "note"
	case Help:
		return "help"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Bug:
		return "bug"
	default:
		return "unknown"
	}
}

// Label attaches a short message to a span; secondary spans let a
// diagnostic point at more than one place in the source at once (e.g.
// a signature mismatch points at both the call site and the callee's
// declaration).
type Label struct {
	Span    Span
	Message string
}

// Diagnostic is one structured error/warning/note, per §7.
type Diagnostic struct {
	Severity  Severity
	Message   string
	Primary   Label
	Secondary []Label
	Help      string
}

func (d Diagnostic) String() string {
	out := fmt.Sprintf("%s: %s\n  --> %s", d.Severity, d.Message, d.Primary.Span)
	if d.Primary.Message != "" {
		out += ": " + d.Primary.Message
	}
	for _, s := range d.Secondary {
		out += fmt.Sprintf("\n  --> %s: %s", s.Span, s.Message)
	}
	if d.Help != "" {
		out += "\n  = help: " + d.Help
	}
	return out
}

// Handler collects diagnostics during a pass and decides, at the end of
// the pass, whether compilation may continue (§7 error kind 2: "reported
// via a diagnostic handler; compilation continues to gather all
// diagnostics in the current pass, then aborts").
type Handler struct {
	diagnostics []Diagnostic
	log         *zap.SugaredLogger
}

// NewHandler creates a Handler that additionally forwards every emitted
// diagnostic to log at a severity-appropriate level, mirroring how the
// solver and linker thread a logger through their own passes.
func NewHandler(log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{log: log}
}

// Emit records a diagnostic. It never aborts the pass itself; callers
// must check HasErrors at natural pass boundaries.
func (h *Handler) Emit(d Diagnostic) {
	h.diagnostics = append(h.diagnostics, d)
	switch d.Severity {
	case Bug:
		h.log.Errorw("compiler bug", "diagnostic", d.String())
	case Error:
		h.log.Errorw("validation failure", "diagnostic", d.String())
	case Warning:
		h.log.Warnw("warning", "diagnostic", d.String())
	default:
		h.log.Debugw("diagnostic", "diagnostic", d.String())
	}
}

// HasErrors reports whether any diagnostic at Error severity or above
// has been emitted.
func (h *Handler) HasErrors() bool {
	for _, d := range h.diagnostics {
		if d.Severity >= Error {
			return true
		}
	}
	return false
}

// Diagnostics returns every diagnostic recorded so far, in emission order.
func (h *Handler) Diagnostics() []Diagnostic {
	return h.diagnostics
}

// Errorf is a convenience for emitting a simple Error-severity diagnostic
// with only a primary span and message, the common case for validation
// failures like signature mismatches and undefined uses.
func (h *Handler) Errorf(span Span, format string, args ...any) {
	h.Emit(Diagnostic{
		Severity: Error,
		Message:  fmt.Sprintf(format, args...),
		Primary:  Label{Span: span},
	})
}
