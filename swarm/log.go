package swarm

import (
	"log"

	"github.com/mitchellh/colorstring"
)

// Logging uses bracketed [INFO]/[WARN]/[FAIL] tags, colorized with
// colorstring so they stand out in a terminal.
var colorize = colorstring.Color

func logInfo(format string, args ...any) {
	log.Printf(colorize("[green][INFO][reset]\t")+format, args...)
}

func logWarn(format string, args ...any) {
	log.Printf(colorize("[yellow][WARN][reset]\t")+format, args...)
}

func logFail(format string, args ...any) {
	log.Printf(colorize("[red][FAIL][reset]\t")+format, args...)
}
