// Completion: 100% - Error handling complete, clear and helpful messages
package engine

import (
	"fmt"
	"strings"
)

// ErrorLevel indicates the severity of an error
type ErrorLevel int

const (
	LevelWarning ErrorLevel = iota
	LevelError
	LevelFatal
)

func (l ErrorLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies the type of error
type ErrorCategory int

const (
	CategoryConfig ErrorCategory = iota
	CategoryTranslation
	CategoryGeneration
	CategorySerialization
	CategoryMetadata
	CategoryInternal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryConfig:
		return "config"
	case CategoryTranslation:
		return "translation"
	case CategoryGeneration:
		return "codegen"
	case CategorySerialization:
		return "serialization"
	case CategoryMetadata:
		return "metadata"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// SourceLocation represents a position in a work-list document
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

func (loc SourceLocation) String() string {
	if loc.File == "" && loc.Line == 0 {
		return "<session>"
	}
	if loc.File == "" {
		return fmt.Sprintf("%d:%d", loc.Line, loc.Column)
	}
	if loc.Line == 0 {
		return loc.File
	}
	return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)
}

// ErrorContext provides additional context for an error
type ErrorContext struct {
	Item       string // Work item being compiled, if any
	Suggestion string // "Did you mean 'x'?"
	HelpText   string
}

// CompilerError represents a single diagnostic
type CompilerError struct {
	Level    ErrorLevel
	Category ErrorCategory
	Message  string
	Location SourceLocation
	Context  ErrorContext
	Cause    error
}

// Error implements the error interface
func (e CompilerError) Error() string {
	msg := e.Message
	if e.Context.Item != "" {
		msg = fmt.Sprintf("%s: %s", e.Context.Item, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Location, msg)
}

// Unwrap exposes the underlying cause
func (e CompilerError) Unwrap() error {
	return e.Cause
}

// Format returns a nicely formatted error message with context
func (e CompilerError) Format(useColor bool) string {
	var sb strings.Builder

	if useColor {
		sb.WriteString("\033[1;31m") // Bold red
	}
	sb.WriteString(e.Level.String())
	sb.WriteString("[")
	sb.WriteString(e.Category.String())
	sb.WriteString("]: ")
	if useColor {
		sb.WriteString("\033[0m")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	sb.WriteString("\n")

	if useColor {
		sb.WriteString("\033[1;34m") // Bold blue
	}
	sb.WriteString("  --> ")
	sb.WriteString(e.Location.String())
	if e.Context.Item != "" {
		sb.WriteString(" (in ")
		sb.WriteString(e.Context.Item)
		sb.WriteString(")")
	}
	if useColor {
		sb.WriteString("\033[0m")
	}
	sb.WriteString("\n")

	if e.Context.Suggestion != "" {
		if useColor {
			sb.WriteString("\033[1;32m")
		}
		sb.WriteString("   help: ")
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString(e.Context.Suggestion)
		sb.WriteString("\n")
	}

	if e.Context.HelpText != "" {
		if useColor {
			sb.WriteString("\033[1;36m")
		}
		sb.WriteString("   note: ")
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString(e.Context.HelpText)
		sb.WriteString("\n")
	}

	return sb.String()
}

// ErrorCollector accumulates diagnostics for a session
type ErrorCollector struct {
	errors   []CompilerError
	warnings []CompilerError
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{}
}

// Add files a diagnostic under errors or warnings depending on its level
func (ec *ErrorCollector) Add(err CompilerError) {
	if err.Level == LevelFatal || err.Level == LevelError {
		ec.errors = append(ec.errors, err)
	} else {
		ec.warnings = append(ec.warnings, err)
	}
}

// HasErrors returns true if any errors were collected
func (ec *ErrorCollector) HasErrors() bool {
	return len(ec.errors) > 0
}

// Errors returns the collected errors
func (ec *ErrorCollector) Errors() []CompilerError {
	return ec.errors
}

// Warnings returns the collected warnings
func (ec *ErrorCollector) Warnings() []CompilerError {
	return ec.warnings
}

// Err returns the first collected error, or nil
func (ec *ErrorCollector) Err() error {
	if len(ec.errors) == 0 {
		return nil
	}
	return ec.errors[0]
}

// Report formats all errors and warnings for display
func (ec *ErrorCollector) Report(useColor bool) string {
	var sb strings.Builder

	for i, err := range ec.errors {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(err.Format(useColor))
	}
	for i, warn := range ec.warnings {
		if i > 0 || len(ec.errors) > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(warn.Format(useColor))
	}

	if len(ec.errors) > 0 || len(ec.warnings) > 0 {
		sb.WriteString("\n")
		if len(ec.errors) > 0 {
			fmt.Fprintf(&sb, "%d error(s)", len(ec.errors))
		}
		if len(ec.warnings) > 0 {
			if len(ec.errors) > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%d warning(s)", len(ec.warnings))
		}
		sb.WriteString(" found\n")
	}

	return sb.String()
}

// ConfigError creates a session configuration error
func ConfigError(message string) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategoryConfig,
		Message:  message,
	}
}

// ConfigWarning creates a session configuration warning
func ConfigWarning(message string) CompilerError {
	return CompilerError{
		Level:    LevelWarning,
		Category: CategoryConfig,
		Message:  message,
	}
}

// ItemError wraps a failure while compiling one work item
func ItemError(category ErrorCategory, item string, loc SourceLocation, cause error) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: category,
		Message:  fmt.Sprintf("failed to compile %s", category),
		Location: loc,
		Context:  ErrorContext{Item: item},
		Cause:    cause,
	}
}

// WithItem attributes the diagnostic to a work item
func (e CompilerError) WithItem(item string, loc SourceLocation) CompilerError {
	e.Context.Item = item
	e.Location = loc
	return e
}

// FatalError creates a fatal internal error
func FatalError(message string) CompilerError {
	return CompilerError{
		Level:    LevelFatal,
		Category: CategoryInternal,
		Message:  message,
		Context: ErrorContext{
			HelpText: "This is an internal compiler error. Please report this bug.",
		},
	}
}
