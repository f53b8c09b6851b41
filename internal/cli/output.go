package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Color codes for terminal output.
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput creates an Output bound to the command's stdout.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		writer:       cmd.OutOrStdout(),
		jsonMode:     jsonMode,
		colorEnabled: !jsonMode && isTerminal(),
	}
}

func isTerminal() bool {
	fileInfo, _ := os.Stdout.Stat()
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// IsJSON reports whether JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as indented JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Printf writes formatted text.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Println writes a line.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Header writes a bold section header.
func (o *Output) Header(text string) {
	if o.colorEnabled {
		fmt.Fprintf(o.writer, "%s%s%s\n", ColorBold, text, ColorReset)
	} else {
		fmt.Fprintln(o.writer, text)
	}
	fmt.Fprintln(o.writer, strings.Repeat("-", len(text)))
}

// Colored wraps text in a color when the terminal supports it.
func (o *Output) Colored(color, text string) string {
	if !o.colorEnabled {
		return text
	}
	return color + text + ColorReset
}

// PnLColored renders a P&L figure green or red.
func (o *Output) PnLColored(pnl float64) string {
	text := FormatPnL(pnl)
	if pnl >= 0 {
		return o.Colored(ColorGreen, text)
	}
	return o.Colored(ColorRed, text)
}
