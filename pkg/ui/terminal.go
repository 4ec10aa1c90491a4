package ui

import (
	"fmt"
	"io"
	"os"
)

// ASCIILogo is printed at the top of interactive commands
const ASCIILogo = `
    ┌──────────────────────────────────────────────────────────┐
    │  ___    _ _                                              │
    │ | __|__| | |_____ __ _____ __ _____ ___ _ __             │
    │ | _/ _ \ | / _ \ V  V (_-< V  V / -_) -_) '_ \           │
    │ |_|\___/_|_\___/\_/\_//__/\_/\_/\___\___| .__/           │
    │                                         |_|              │
    │          follower collection and cleanup                 │
    └──────────────────────────────────────────────────────────┘
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// Out is where the Print helpers write
var Out io.Writer = os.Stdout

func colorize(format string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(format, text)
	}
}

// PrintLogo prints the logo
func PrintLogo() {
	fmt.Fprint(Out, Cyan(ASCIILogo))
}

// PrintError prints msg in red, followed by err when given
func PrintError(msg string, err ...error) {
	if len(err) > 0 && err[0] != nil {
		msg += ": " + err[0].Error()
	}
	fmt.Fprintln(Out, Red(msg))
}

// PrintSuccess prints msg in green
func PrintSuccess(msg string) {
	fmt.Fprintln(Out, Green(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label, value string) {
	fmt.Fprintf(Out, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints msg in yellow
func PrintWarning(msg string) {
	fmt.Fprintln(Out, Yellow(msg))
}

// PrintHighlight prints msg in magenta
func PrintHighlight(msg string) {
	fmt.Fprintln(Out, Magenta(msg))
}
