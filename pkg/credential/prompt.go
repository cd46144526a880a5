package credential

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the operator for a value.
type Prompter interface {
	// Interactive reports whether a human can answer prompts.
	Interactive() bool
	// Prompt asks for a value; secret input is not echoed.
	Prompt(label string, secret bool) (string, error)
}

// TerminalPrompter prompts on the controlling terminal.
type TerminalPrompter struct {
	in     *os.File
	out    io.Writer
	reader *bufio.Reader
}

var _ Prompter = (*TerminalPrompter)(nil)

// NewTerminalPrompter prompts on stdin/stderr.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		in:     os.Stdin,
		out:    os.Stderr,
		reader: bufio.NewReader(os.Stdin),
	}
}

// Interactive implements Prompter.
func (p *TerminalPrompter) Interactive() bool {
	return term.IsTerminal(int(p.in.Fd()))
}

// Prompt implements Prompter.
func (p *TerminalPrompter) Prompt(label string, secret bool) (string, error) {
	fmt.Fprint(p.out, label)

	if secret {
		b, err := term.ReadPassword(int(p.in.Fd()))
		fmt.Fprintln(p.out)

		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}

		return strings.TrimSpace(string(b)), nil
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading input: %w", err)
	}

	return strings.TrimSpace(line), nil
}
