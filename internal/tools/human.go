// internal/tools/human.go
package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrHumanCancelled is returned when the human closes input or the wait is cancelled.
var ErrHumanCancelled = errors.New("human input cancelled")

// HumanPrompter asks the person running the agent for guidance.
type HumanPrompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// ConsolePrompter prints the question and reads one line of input.
type ConsolePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsolePrompter reads answers from in and writes prompts to out.
func NewConsolePrompter(in io.Reader, out io.Writer) *ConsolePrompter {
	return &ConsolePrompter{in: bufio.NewReader(in), out: out}
}

// Ask blocks until a line is read, input ends or ctx is done. A cancelled
// wait leaves the read pending; the next Ask does not see its line.
func (p *ConsolePrompter) Ask(ctx context.Context, question string) (string, error) {
	fmt.Fprintf(p.out, "\n--- Agent needs help ---\n%s\n\nYour guidance: ", question)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrHumanCancelled
	case a := <-ch:
		if a.err != nil && (a.line == "" || !errors.Is(a.err, io.EOF)) {
			return "", ErrHumanCancelled
		}
		fmt.Fprintln(p.out, "Continuing with your guidance...")
		return strings.TrimSpace(a.line), nil
	}
}
