package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

const reset = "\033[0m"

// ANSI attributes.
const (
	FgRed    = 31
	FgGreen  = 32
	FgYellow = 33
	FgCyan   = 36
	FgWhite  = 37
	Bold     = 1
)

// Color is a set of ANSI attributes applied around printed text.
type Color struct {
	params []int
}

func NewColor(attrs ...int) *Color {
	return &Color{params: attrs}
}

func (c *Color) format() string {
	if len(c.params) == 0 {
		return ""
	}
	parts := make([]string, len(c.params))
	for i, p := range c.params {
		parts[i] = strconv.Itoa(p)
	}
	return "\033[" + strings.Join(parts, ";") + "m"
}

// Fprintf writes colored output unless color is disabled.
func (c *Color) Fprintf(w io.Writer, plain bool, format string, a ...any) {
	if plain {
		fmt.Fprintf(w, format, a...)
		return
	}
	fmt.Fprintf(w, c.format()+format+reset, a...)
}

// Sprint returns s wrapped in the color's escape codes.
func (c *Color) Sprint(s string) string {
	return c.format() + s + reset
}
