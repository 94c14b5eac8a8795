// Package prompt implements the interactive yes/no questions asked
// during node selection and deployment
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter asks yes/no questions. Implementations print the question
// verbatim (no newline is added) and interpret the answer.
type Prompter interface {
	// Confirm asks once: empty input selects the default, y/yes
	// answers yes, anything else answers no
	Confirm(question string, defaultYes bool) bool

	// ConfirmStrict re-asks until the answer is empty, y, yes, n or no
	ConfirmStrict(question string, defaultYes bool) bool
}

// Terminal is a Prompter reading line-oriented answers from in and
// writing questions to out
type Terminal struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewTerminal creates a Terminal prompter
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Confirm implements Prompter.Confirm
func (t *Terminal) Confirm(question string, defaultYes bool) bool {
	fmt.Fprint(t.out, question)

	answer, err := t.readAnswer()
	if err != nil {
		// Closed stdin declines rather than looping forever
		return false
	}

	switch answer {
	case "":
		return defaultYes
	case "y", "yes":
		return true
	}
	return false
}

// ConfirmStrict implements Prompter.ConfirmStrict
func (t *Terminal) ConfirmStrict(question string, defaultYes bool) bool {
	for {
		fmt.Fprint(t.out, question)

		answer, err := t.readAnswer()
		if err != nil {
			return false
		}

		switch answer {
		case "":
			return defaultYes
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		fmt.Fprintln(t.out, "    Please enter 'y' or 'n'")
	}
}

func (t *Terminal) readAnswer() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}
