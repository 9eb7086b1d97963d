// File: internal/plugins/clipper.go
package plugins

import (
	"fmt"
	"unicode/utf8"
)

// OutputClipper keeps the head and tail of a long command result and drops the
// middle, so one noisy command cannot crowd the rest of the context out.
type OutputClipper struct {
	Base
	maxChars int
}

// NewOutputClipper returns a clipper; maxChars <= 0 disables clipping.
func NewOutputClipper(maxChars int) *OutputClipper {
	return &OutputClipper{maxChars: maxChars}
}

func (c *OutputClipper) Name() string               { return "output_clipper" }
func (c *OutputClipper) CanHandlePostCommand() bool { return true }

func (c *OutputClipper) PostCommand(name, result string) (string, error) {
	if c.maxChars <= 0 || utf8.RuneCountInString(result) <= c.maxChars {
		return result, nil
	}
	runes := []rune(result)
	head := c.maxChars * 2 / 3
	tail := c.maxChars - head
	omitted := len(runes) - head - tail
	return fmt.Sprintf("%s\n... [%d characters omitted from %s output] ...\n%s",
		string(runes[:head]), omitted, name, string(runes[len(runes)-tail:])), nil
}
