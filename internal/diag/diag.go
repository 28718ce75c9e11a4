// Package diag collects linker diagnostics and renders them with
// severity-appropriate color, the same red/yellow/cyan scheme a build
// tool uses to make errors easy to spot in a scrolling terminal.
package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Severity classifies a Diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Diagnostic is one reported problem or note, optionally tied to a
// source object/module.
type Diagnostic struct {
	Severity Severity
	Module   string
	Message  string
}

// Diagnostics accumulates diagnostics across a link and reports whether
// any are fatal.
type Diagnostics struct {
	items []Diagnostic
}

func (d *Diagnostics) Add(sev Severity, module, format string, args ...any) {
	d.items = append(d.items, Diagnostic{Severity: sev, Module: module, Message: fmt.Sprintf(format, args...)})
}

func (d *Diagnostics) Errorf(module, format string, args ...any) { d.Add(Error, module, format, args...) }
func (d *Diagnostics) Warnf(module, format string, args ...any)  { d.Add(Warning, module, format, args...) }
func (d *Diagnostics) Infof(module, format string, args ...any)  { d.Add(Info, module, format, args...) }

// HasErrors reports whether any accumulated diagnostic is an Error.
func (d *Diagnostics) HasErrors() bool {
	for _, it := range d.items {
		if it.Severity == Error {
			return true
		}
	}
	return false
}

var (
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow, color.Bold)
	infoColor  = color.New(color.FgCyan)
)

// Print writes every diagnostic to w, one per line, colored by severity.
func (d *Diagnostics) Print(w io.Writer) {
	for _, it := range d.items {
		var c *color.Color
		switch it.Severity {
		case Error:
			c = errorColor
		case Warning:
			c = warnColor
		default:
			c = infoColor
		}
		label := c.Sprintf("%s", it.Severity)
		if it.Module != "" {
			fmt.Fprintf(w, "%s: %s: %s\n", label, it.Module, it.Message)
		} else {
			fmt.Fprintf(w, "%s: %s\n", label, it.Message)
		}
	}
}
