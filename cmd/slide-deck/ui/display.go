package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	dimColor     = color.New(color.Faint)

	verboseOutput bool
)

// Init applies the global color and verbosity settings.
func Init(noColor, verbose bool) {
	verboseOutput = verbose
	if noColor {
		color.NoColor = true
	}
}

// Success displays a success message.
func Success(format string, args ...any) {
	successColor.Fprintf(os.Stdout, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error displays an error message to stderr.
func Error(format string, args ...any) {
	errorColor.Fprintf(os.Stderr, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func Warning(format string, args ...any) {
	warnColor.Fprintf(os.Stdout, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...any) {
	infoColor.Fprintf(os.Stdout, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Debug displays a message only in verbose mode.
func Debug(format string, args ...any) {
	if !verboseOutput {
		return
	}
	dimColor.Fprintf(os.Stderr, "  %s\n", fmt.Sprintf(format, args...))
}

// KeyValue displays a key-value pair.
func KeyValue(key, value string) {
	fmt.Fprintf(os.Stdout, "  %s: %s\n", key, value)
}

// Section displays a section header.
func Section(title string) {
	fmt.Fprintf(os.Stdout, "\n%s\n%s\n\n", color.New(color.Bold).Sprint(title), strings.Repeat("=", len(title)))
}
