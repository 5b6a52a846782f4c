// Package prompt asks the operator for the run inputs on a terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/okian/tempusrecords/internal/domain/model"
)

// ErrNoInput is returned when input ends before a valid answer was given.
var ErrNoInput = errors.New("no input")

// Prompter reads answers line by line and re-asks until they are valid.
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// New returns a prompter reading from in and writing questions to out.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(in), out: out}
}

// PlayerID asks for a numeric player id.
func (p *Prompter) PlayerID() (model.PlayerID, error) {
	for {
		line, err := p.ask("Enter player ID (integer): ")
		if err != nil {
			return 0, err
		}
		id, err := model.ParsePlayerID(line)
		if err == nil {
			return id, nil
		}
		p.say("Invalid input. Please enter a valid integer player ID.\n")
	}
}

// Class asks for the discipline by menu number.
func (p *Prompter) Class() (model.Class, error) {
	p.say("Choose class:\n1 - Soldier\n2 - Demoman\n")
	for {
		line, err := p.ask("Enter 1 or 2: ")
		if err != nil {
			return 0, err
		}
		c, err := model.ParseClass(line)
		if err == nil {
			return c, nil
		}
		p.say("Invalid input. Please enter 1 or 2.\n")
	}
}

// WaitEnter blocks until a line or end of input.
func (p *Prompter) WaitEnter(msg string) {
	_, _ = p.ask(msg)
}

func (p *Prompter) ask(question string) (string, error) {
	p.say(question)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", fmt.Errorf("read answer: %w", err)
		}
		return "", ErrNoInput
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *Prompter) say(s string) {
	_, _ = io.WriteString(p.out, s)
}
