package output

import (
	"fmt"
	"strconv"
	"strings"
)

// ANSI attributes
const (
	fgRed    = 31
	fgGreen  = 32
	fgYellow = 33
	fgCyan   = 36
	fgWhite  = 37
	bold     = 1
)

type color []int

// paint wraps s in the escape sequence for c unless enabled is false.
func (c color) paint(enabled bool, s string) string {
	if !enabled || len(c) == 0 {
		return s
	}
	codes := make([]string, len(c))
	for i, attr := range c {
		codes[i] = strconv.Itoa(attr)
	}
	return "\033[" + strings.Join(codes, ";") + "m" + s + "\033[0m"
}

func (c color) sprintf(enabled bool, format string, a ...interface{}) string {
	return c.paint(enabled, fmt.Sprintf(format, a...))
}
