// Package printer formats gridctl's terminal output: coloured status lines
// on stdout and multi-part error reports on stderr.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Colour even when piped; NO_COLOR still turns it off.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)

	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
)

// SetOutput redirects status output to stdout and error reports to stderr,
// returning a func that restores the previous writers.
func SetOutput(stdout, stderr io.Writer) (restore func()) {
	prevOut, prevErr := out, errOut
	out, errOut = stdout, stderr
	return func() { out, errOut = prevOut, prevErr }
}

// Success prints a green line marked with a check.
func Success(format string, a ...any) {
	green.Fprint(out, prefixed("✓ ", fmt.Sprintf(format, a...)))
}

// Info prints uncoloured.
func Info(format string, a ...any) {
	fmt.Fprintf(out, format, a...)
}

// Warning prints a yellow line marked with a warning sign.
func Warning(format string, a ...any) {
	yellow.Fprint(out, prefixed("⚠️  ", fmt.Sprintf(format, a...)))
}

// Step announces one stage of a longer operation.
func Step(format string, a ...any) {
	cyan.Fprint(out, prefixed("→ ", fmt.Sprintf(format, a...)))
}

func Println(a ...any) {
	fmt.Fprintln(out, a...)
}

func Printf(format string, a ...any) {
	fmt.Fprintf(out, format, a...)
}

// Error reports a failure on stderr and returns an error carrying only the
// title, so commands with SilenceErrors do not print it twice.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value details, listed in key order,
// between the explanation and the suggestions.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(errOut, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(errOut, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(errOut)
		for _, k := range keys {
			fmt.Fprintf(errOut, "  %s: %s\n", k, context[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(errOut, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(errOut, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(errOut, "  %d. %s\n", i+1, s)
		}
	}

	return fmt.Errorf("%s", title)
}

func prefixed(prefix, msg string) string {
	if strings.HasPrefix(msg, strings.TrimSpace(prefix)) {
		return msg
	}
	return prefix + msg
}
