// internal/agent/operator.go
package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Operator is the human on the other side of the authorization prompt.
type Operator interface {
	// ReadLine shows prompt and blocks for one line of input or ctx.
	ReadLine(ctx context.Context, prompt string) (string, error)
	// Say shows a line of output.
	Say(text string)
}

// ConsoleOperator reads lines from in and writes to out. A single reader
// goroutine owns in, so an abandoned ReadLine does not lose the next line.
type ConsoleOperator struct {
	out     io.Writer
	in      *bufio.Reader
	lines   chan string
	readErr error
	once    sync.Once
	mu      sync.Mutex
}

func NewConsoleOperator(in io.Reader, out io.Writer) *ConsoleOperator {
	return &ConsoleOperator{
		out:   out,
		in:    bufio.NewReader(in),
		lines: make(chan string),
	}
}

// start launches the reader. It exits when in is exhausted, closing lines.
func (o *ConsoleOperator) start() {
	go func() {
		defer close(o.lines)
		for {
			line, err := o.in.ReadString('\n')
			if line != "" {
				o.lines <- strings.TrimRight(line, "\r\n")
			}
			if err != nil {
				o.readErr = err
				return
			}
		}
	}()
}

// ReadLine returns io.EOF once the input is exhausted.
func (o *ConsoleOperator) ReadLine(ctx context.Context, prompt string) (string, error) {
	o.once.Do(o.start)
	o.mu.Lock()
	fmt.Fprint(o.out, prompt)
	o.mu.Unlock()

	select {
	case line, ok := <-o.lines:
		if !ok {
			return "", o.readErr
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (o *ConsoleOperator) Say(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.out, text)
}
