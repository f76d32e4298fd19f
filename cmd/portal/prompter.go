package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// linePrompter asks on out and reads answers line by line from in.
// assumeYes and notes pre-answer the questions for scripted use.
type linePrompter struct {
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
	notes     *string
}

func newLinePrompter(in io.Reader, out io.Writer) *linePrompter {
	return &linePrompter{in: bufio.NewReader(in), out: out}
}

func (p *linePrompter) Confirm(ctx context.Context, message string) (bool, error) {
	if p.assumeYes {
		fmt.Fprintf(p.out, "%s yes\n", message)
		return true, nil
	}
	fmt.Fprintf(p.out, "%s [y/N]: ", message)
	line, err := p.readLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (p *linePrompter) Prompt(ctx context.Context, message string) (string, error) {
	if p.notes != nil {
		return *p.notes, nil
	}
	fmt.Fprintf(p.out, "%s ", message)
	return p.readLine(ctx)
}

// readLine treats end of input as an empty answer.
func (p *linePrompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
