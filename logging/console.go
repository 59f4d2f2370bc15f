package logging

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ConsoleSink writes records to stderr, colorized by severity when
// stderr is a real terminal. It is a thinner alternative to ZapSink
// for interactive use, installed with SetSink.
type ConsoleSink struct {
	colorize bool
}

// NewConsoleSink builds a ConsoleSink. Color is auto-detected via
// isatty, so output piped to a file is not colorized; there is no
// option to override the detection.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{colorize: isatty.IsTerminal(os.Stderr.Fd())}
}

func (c *ConsoleSink) Write(r Record) {
	line := fmt.Sprintf("[%s] %s %s:%d %s\n", r.Level, r.Tag, r.File, r.Line, r.Message)
	if !c.colorize {
		fmt.Fprint(os.Stderr, line)
		return
	}

	var paint func(format string, a ...interface{}) string
	switch r.Level {
	case LevelFatal, LevelError:
		paint = color.New(color.FgRed, color.Bold).Sprintf
	case LevelWarning:
		paint = color.New(color.FgYellow).Sprintf
	case LevelDebug:
		paint = color.New(color.FgCyan).Sprintf
	default:
		paint = color.New(color.FgWhite).Sprintf
	}
	fmt.Fprint(os.Stderr, paint("%s", line))
}
