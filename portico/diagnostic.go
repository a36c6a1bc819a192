package portico

import (
	"fmt"
	"strings"
)

// Category is the coarse classification of a Diagnostic. Boundary-specific
// categories (unsupported-backend, handle-closed, incompatible-snapshot)
// are produced by the gate; parse and eval diagnostics are forwarded from
// the engine verbatim.
type Category string

const (
	CategoryUnsupportedBackend   Category = "unsupported-backend"
	CategoryStorageInit          Category = "storage-init"
	CategoryHandleClosed         Category = "handle-closed"
	CategoryParse                Category = "parse"
	CategoryEval                 Category = "eval"
	CategoryIncompatibleSnapshot Category = "incompatible-snapshot"
	CategoryIO                   Category = "io"
	CategoryInternal             Category = "internal"
)

// Span points at a region of the submitted script, in byte offsets with
// 1-based line/column for the start position.
type Span struct {
	Start int    // byte offset, inclusive
	End   int    // byte offset, exclusive
	Line  int    // 1-based line of Start
	Col   int    // 1-based column of Start
	Label string // short annotation shown next to the highlight
}

// Diagnostic is the structured error value that crosses the embedding
// boundary. It is never collapsed to a flat string: hosts can render the
// category, code, spans and cause chain however they need.
type Diagnostic struct {
	Category Category
	Code     string // hierarchical, e.g. "parser::unexpected_token"
	Message  string
	Spans    []Span
	Cause    error

	// PartialEffects reports whether a failed write query may have left
	// some of its mutations behind. False whenever the backend rolled the
	// transaction back.
	PartialEffects bool

	source string // script text, kept for Render
}

// NewDiagnostic creates a diagnostic with a category, code and message.
func NewDiagnostic(cat Category, code, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{
		Category: cat,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	}
}

// WithSpan attaches a source span.
func (d *Diagnostic) WithSpan(s Span) *Diagnostic {
	d.Spans = append(d.Spans, s)
	return d
}

// WithCause chains an underlying error.
func (d *Diagnostic) WithCause(err error) *Diagnostic {
	d.Cause = err
	return d
}

// WithSource attaches the script text so Render can highlight spans.
func (d *Diagnostic) WithSource(src string) *Diagnostic {
	d.source = src
	return d
}

// Error implements the error interface with a single-line summary.
func (d *Diagnostic) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", d.Category)
	if d.Code != "" {
		fmt.Fprintf(&b, " %s:", d.Code)
	}
	b.WriteByte(' ')
	b.WriteString(d.Message)
	if len(d.Spans) > 0 {
		s := d.Spans[0]
		fmt.Fprintf(&b, " (at %d:%d)", s.Line, s.Col)
	}
	if d.Cause != nil {
		fmt.Fprintf(&b, ": %v", d.Cause)
	}
	return b.String()
}

// Unwrap exposes the cause chain to errors.Is / errors.As.
func (d *Diagnostic) Unwrap() error {
	return d.Cause
}

// Render produces the full human-readable form: the summary line, then
// each span highlighted against its source line with a caret underline,
// then the cause chain.
func (d *Diagnostic) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", d.Category)
	if d.Code != "" {
		fmt.Fprintf(&b, " %s", d.Code)
	}
	b.WriteString("\n")
	b.WriteString(d.Message)
	b.WriteString("\n")

	if d.source != "" {
		lines := strings.Split(d.source, "\n")
		for _, s := range d.Spans {
			if s.Line < 1 || s.Line > len(lines) {
				continue
			}
			src := lines[s.Line-1]
			fmt.Fprintf(&b, "\n%4d | %s\n", s.Line, src)
			width := s.End - s.Start
			if width < 1 {
				width = 1
			}
			if s.Col-1+width > len(src)+1 {
				width = len(src) - (s.Col - 1) + 1
				if width < 1 {
					width = 1
				}
			}
			b.WriteString("     | ")
			b.WriteString(strings.Repeat(" ", s.Col-1))
			b.WriteString(strings.Repeat("^", width))
			if s.Label != "" {
				b.WriteString(" ")
				b.WriteString(s.Label)
			}
			b.WriteString("\n")
		}
	}

	for cause := d.Cause; cause != nil; {
		fmt.Fprintf(&b, "caused by: %v\n", cause)
		u, ok := cause.(interface{ Unwrap() error })
		if !ok {
			break
		}
		cause = u.Unwrap()
	}

	return b.String()
}

// AsDiagnostic extracts a *Diagnostic from an error chain, or wraps a
// plain error as an internal diagnostic so every failure crossing the
// boundary is structured.
func AsDiagnostic(err error) *Diagnostic {
	if err == nil {
		return nil
	}
	if d, ok := err.(*Diagnostic); ok {
		return d
	}
	for cause := err; cause != nil; {
		if d, ok := cause.(*Diagnostic); ok {
			return d
		}
		u, ok := cause.(interface{ Unwrap() error })
		if !ok {
			break
		}
		cause = u.Unwrap()
	}
	return NewDiagnostic(CategoryInternal, "internal::wrapped", "%s", err.Error()).WithCause(err)
}
