package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/openfroyo/launchpad/pkg/engine"
	"golang.org/x/term"
)

// Terminal is the interactive engine.Prompter and engine.Reporter.
type Terminal struct {
	in      io.Reader
	reader  *bufio.Reader
	lines   chan lineResult
	pending bool
	out     io.Writer
	styles  Styles

	// fd is the input's descriptor when it is a terminal, else -1.
	fd int
}

var (
	_ engine.Prompter = (*Terminal)(nil)
	_ engine.Reporter = (*Terminal)(nil)
)

type lineResult struct {
	line string
	err  error
}

// NewTerminal returns a Terminal on stdin and stdout. Colors and menus are used
// only when both are terminals.
func NewTerminal() *Terminal {
	t := NewTerminalIO(os.Stdin, os.Stdout)
	if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		t.fd = int(os.Stdin.Fd())
		t.styles = DefaultStyles()
	}
	return t
}

// NewTerminalIO returns a non-interactive Terminal over in and out: secrets are
// read as plain lines and menus become numbered lists.
func NewTerminalIO(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:     in,
		reader: bufio.NewReader(in),
		lines:  make(chan lineResult, 1),
		out:    out,
		styles: PlainStyles(),
		fd:     -1,
	}
}

func (t *Terminal) interactive() bool {
	return t.fd >= 0
}

// readLine reads one line without blocking past ctx. End of input is ErrAborted.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	// A read abandoned by cancellation is still pending; wait for it instead of
	// starting a second reader on the same buffer.
	if !t.pending {
		t.pending = true
		go func() {
			line, err := t.reader.ReadString('\n')
			if err == io.EOF && line != "" {
				err = nil
			}
			t.lines <- lineResult{line: strings.TrimRight(line, "\r\n"), err: err}
		}()
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(t.out)
		return "", engine.ErrAborted
	case r := <-t.lines:
		t.pending = false
		if errors.Is(r.err, io.EOF) {
			fmt.Fprintln(t.out)
			return "", engine.ErrAborted
		}
		if r.err != nil {
			return "", fmt.Errorf("read input: %w", r.err)
		}
		return r.line, nil
	}
}

// readSecret reads a line with echo disabled when the input is a terminal.
func (t *Terminal) readSecret(ctx context.Context) (string, error) {
	if !t.interactive() {
		return t.readLine(ctx)
	}

	state, err := term.GetState(t.fd)
	if err != nil {
		return "", fmt.Errorf("read terminal state: %w", err)
	}
	done := make(chan lineResult, 1)
	go func() {
		b, err := term.ReadPassword(t.fd)
		done <- lineResult{line: string(b), err: err}
	}()

	select {
	case <-ctx.Done():
		_ = term.Restore(t.fd, state)
		fmt.Fprintln(t.out)
		return "", engine.ErrAborted
	case r := <-done:
		fmt.Fprintln(t.out)
		if errors.Is(r.err, io.EOF) {
			return "", engine.ErrAborted
		}
		return r.line, r.err
	}
}

// Input implements engine.Prompter.
func (t *Terminal) Input(ctx context.Context, q engine.Question) (string, error) {
	for {
		prompt := q.Label
		if q.Default != "" && !q.Secret {
			prompt += " " + t.styles.Muted.Render("["+q.Default+"]")
		}
		fmt.Fprint(t.out, t.styles.Label.Render(prompt)+": ")

		value, err := t.read(ctx, q.Secret)
		if err != nil {
			return "", err
		}
		value = strings.TrimSpace(value)
		if value == "" {
			value = q.Default
		}

		if value == "" && q.AllowEmpty {
			return "", nil
		}
		if q.Validate != nil {
			if err := q.Validate(value); err != nil {
				t.Fail("%v", err)
				continue
			}
		} else if value == "" {
			t.Fail("a value is required")
			continue
		}

		if q.Confirm {
			fmt.Fprint(t.out, t.styles.Label.Render("Repeat "+q.Label)+": ")
			again, err := t.read(ctx, q.Secret)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(again) != value {
				t.Fail("entries do not match")
				continue
			}
		}
		return value, nil
	}
}

func (t *Terminal) read(ctx context.Context, secret bool) (string, error) {
	if secret {
		return t.readSecret(ctx)
	}
	return t.readLine(ctx)
}

// Confirm implements engine.Prompter.
func (t *Terminal) Confirm(ctx context.Context, label string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for {
		fmt.Fprintf(t.out, "%s %s ", t.styles.Label.Render(label), t.styles.Muted.Render(hint))
		answer, err := t.readLine(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		t.Fail("answer y or n")
	}
}

// Select implements engine.Prompter.
func (t *Terminal) Select(ctx context.Context, label string, choices []engine.Choice) (int, error) {
	if len(choices) == 0 {
		return 0, errors.New("nothing to select")
	}
	if t.interactive() {
		sel, err := runMenu(ctx, t.in, t.out, newMenu(label, choices, false, nil, t.styles))
		if err != nil {
			return 0, err
		}
		return sel[0], nil
	}

	t.printChoices(label, choices, nil)
	for {
		fmt.Fprint(t.out, "Choice: ")
		answer, err := t.readLine(ctx)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(answer))
		if err == nil && n >= 1 && n <= len(choices) {
			return n - 1, nil
		}
		t.Fail("enter a number between 1 and %d", len(choices))
	}
}

// MultiSelect implements engine.Prompter. The line form accepts a comma
// separated list of numbers, "all", or an empty line for the preselection.
func (t *Terminal) MultiSelect(ctx context.Context, label string, choices []engine.Choice, preselected []int) ([]int, error) {
	if len(choices) == 0 {
		return nil, nil
	}
	if t.interactive() {
		return runMenu(ctx, t.in, t.out, newMenu(label, choices, true, preselected, t.styles))
	}

	t.printChoices(label, choices, preselected)
	for {
		fmt.Fprint(t.out, "Choices (e.g. 1,3 or all): ")
		answer, err := t.readLine(ctx)
		if err != nil {
			return nil, err
		}
		sel, err := ParseSelection(answer, len(choices), preselected)
		if err == nil {
			return sel, nil
		}
		t.Fail("%v", err)
	}
}

func (t *Terminal) printChoices(label string, choices []engine.Choice, preselected []int) {
	marked := make(map[int]bool, len(preselected))
	for _, i := range preselected {
		marked[i] = true
	}
	fmt.Fprintln(t.out, t.styles.Label.Render(label))
	for i, c := range choices {
		mark := " "
		if marked[i] {
			mark = "*"
		}
		line := fmt.Sprintf(" %s %2d) %s", mark, i+1, c.Label)
		if c.Detail != "" {
			line += " " + t.styles.Muted.Render(c.Detail)
		}
		fmt.Fprintln(t.out, line)
	}
}

// ParseSelection turns "1,3", "2-4" or "all" into ascending zero-based indexes.
// An empty answer returns def.
func ParseSelection(answer string, n int, def []int) ([]int, error) {
	answer = strings.TrimSpace(strings.ToLower(answer))
	switch answer {
	case "":
		if len(def) == 0 {
			return nil, errors.New("select at least one entry")
		}
		return def, nil
	case "all", "a":
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(answer, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid entry %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil || last < first {
				return nil, fmt.Errorf("invalid range %q", part)
			}
		}
		if first < 1 || last > n {
			return nil, fmt.Errorf("entries must be between 1 and %d", n)
		}
		for i := first; i <= last; i++ {
			seen[i-1] = true
		}
	}
	if len(seen) == 0 {
		return nil, errors.New("select at least one entry")
	}

	out := make([]int, 0, len(seen))
	for i := 0; i < n; i++ {
		if seen[i] {
			out = append(out, i)
		}
	}
	return out, nil
}

// Section implements engine.Reporter.
func (t *Terminal) Section(title string) {
	fmt.Fprintln(t.out, t.styles.Section.Render("== "+title))
}

// Info implements engine.Reporter.
func (t *Terminal) Info(format string, args ...any) {
	fmt.Fprintln(t.out, t.styles.Info.Render("  "+fmt.Sprintf(format, args...)))
}

// Success implements engine.Reporter.
func (t *Terminal) Success(format string, args ...any) {
	fmt.Fprintln(t.out, t.styles.Success.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warn implements engine.Reporter.
func (t *Terminal) Warn(format string, args ...any) {
	fmt.Fprintln(t.out, t.styles.Warning.Render("! "+fmt.Sprintf(format, args...)))
}

// Fail implements engine.Reporter.
func (t *Terminal) Fail(format string, args ...any) {
	fmt.Fprintln(t.out, t.styles.Error.Render("✗ "+fmt.Sprintf(format, args...)))
}
