// Package logging builds the process slog handler.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Log formats.
const (
	FormatAuto    = "auto"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Formats lists the accepted format names.
var Formats = []any{FormatAuto, FormatJSON, FormatConsole}

// New returns a logger writing to w. FormatAuto picks the colour console
// handler when w is a terminal and JSON otherwise.
func New(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	tty := isTerminal(w)
	if format == FormatConsole || (format == FormatAuto && tty) {
		if f, ok := w.(*os.File); ok && tty {
			w = colorable.NewColorable(f)
		}
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
			NoColor:    !tty,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
