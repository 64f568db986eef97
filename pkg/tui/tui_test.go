package tui

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/setup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTerminal(input string) (*Terminal, *bytes.Buffer) {
	var out bytes.Buffer
	return NewTerminalIO(strings.NewReader(input), &out), &out
}

func TestInputValidatesAndRepeats(t *testing.T) {
	term, out := newTestTerminal("https://example.com\nexample.com\n")

	v, err := term.Input(context.Background(), engine.Question{Label: "Domain", Validate: setup.ValidateDomain})
	require.NoError(t, err)
	assert.Equal(t, "example.com", v)
	assert.Contains(t, out.String(), "without a scheme")
}

func TestInputDefaultAndAllowEmpty(t *testing.T) {
	term, out := newTestTerminal("\n\n")

	v, err := term.Input(context.Background(), engine.Question{Label: "SSH user", Default: "root"})
	require.NoError(t, err)
	assert.Equal(t, "root", v)
	assert.Contains(t, out.String(), "[root]")

	v, err = term.Input(context.Background(), engine.Question{Label: "DNS token", AllowEmpty: true, Secret: true})
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestInputConfirmMismatch(t *testing.T) {
	term, out := newTestTerminal("correct-horse-battery\nwrong-horse-battery\ncorrect-horse-battery\ncorrect-horse-battery\n")

	v, err := term.Input(context.Background(), engine.Question{
		Label:    "Passphrase",
		Secret:   true,
		Confirm:  true,
		Validate: setup.ValidatePassword,
	})
	require.NoError(t, err)
	assert.Equal(t, "correct-horse-battery", v)
	assert.Contains(t, out.String(), "do not match")
}

func TestEndOfInputAborts(t *testing.T) {
	term, _ := newTestTerminal("")

	_, err := term.Input(context.Background(), engine.Question{Label: "Domain"})
	assert.ErrorIs(t, err, engine.ErrAborted)

	_, err = term.Confirm(context.Background(), "Retry?", true)
	assert.ErrorIs(t, err, engine.ErrAborted)
}

func TestCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, w := ioPipe(t)
	defer w.Close()
	term := NewTerminalIO(r, &bytes.Buffer{})

	_, err := term.Input(ctx, engine.Question{Label: "Domain"})
	assert.ErrorIs(t, err, engine.ErrAborted)
}

func TestConfirm(t *testing.T) {
	term, out := newTestTerminal("\nmaybe\nn\nYES\n")
	ctx := context.Background()

	v, err := term.Confirm(ctx, "Retry?", true)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = term.Confirm(ctx, "Continue?", true)
	require.NoError(t, err)
	assert.False(t, v)
	assert.Contains(t, out.String(), "answer y or n")

	v, err = term.Confirm(ctx, "Reuse?", false)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestLineSelect(t *testing.T) {
	term, _ := newTestTerminal("9\n2\n")
	choices := []engine.Choice{{Label: "fsn1"}, {Label: "hel1", Detail: "Helsinki"}}

	i, err := term.Select(context.Background(), "Location", choices)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
}

func TestLineMultiSelect(t *testing.T) {
	term, out := newTestTerminal("\n")
	choices := []engine.Choice{{Label: "a"}, {Label: "b"}, {Label: "c"}}

	sel, err := term.MultiSelect(context.Background(), "Steps", choices, []int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, sel)
	assert.Contains(t, out.String(), " *  1) a")
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "1,3", want: []int{0, 2}},
		{in: "3, 1, 3", want: []int{0, 2}},
		{in: "2-4", want: []int{1, 2, 3}},
		{in: "all", want: []int{0, 1, 2, 3}},
		{in: "", want: []int{1}},
		{in: "5", wantErr: true},
		{in: "0", wantErr: true},
		{in: "3-2", wantErr: true},
		{in: "x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSelection(tt.in, 4, []int{1})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMenuModelMultiSelect(t *testing.T) {
	choices := []engine.Choice{{Label: "ssh-key"}, {Label: "server"}, {Label: "dns"}}
	var m tea.Model = newMenu("Steps", choices, true, []int{0}, PlainStyles())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(keyRunes("x"))
	m, _ = m.Update(keyRunes("j"))
	view := m.View()
	assert.Contains(t, view, "> [ ] dns")
	assert.Contains(t, view, "[x] server")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	menu := m.(menuModel)
	assert.True(t, menu.done)
	assert.Equal(t, []int{0, 1}, menu.selection())
}

func TestMenuModelRequiresOneEntry(t *testing.T) {
	var m tea.Model = newMenu("Steps", []engine.Choice{{Label: "a"}}, true, nil, PlainStyles())
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, m.(menuModel).done)

	m, _ = m.Update(keyRunes("a"))
	assert.Equal(t, []int{0}, m.(menuModel).selection())
}

func TestMenuModelCancel(t *testing.T) {
	for _, msg := range []tea.KeyMsg{{Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		var m tea.Model = newMenu("Location", []engine.Choice{{Label: "fsn1"}}, false, nil, PlainStyles())
		m, cmd := m.Update(msg)
		require.NotNil(t, cmd)
		assert.True(t, m.(menuModel).canceled)
		assert.Empty(t, m.View())
	}
}

func TestReporter(t *testing.T) {
	term, out := newTestTerminal("")
	term.Section("[1/2] Server")
	term.Success("created %s", "lp-1")
	term.Warn("netplan skipped")
	term.Fail("boom: %v", errors.New("503"))

	text := out.String()
	assert.Contains(t, text, "== [1/2] Server")
	assert.Contains(t, text, "✓ created lp-1")
	assert.Contains(t, text, "! netplan skipped")
	assert.Contains(t, text, "✗ boom: 503")
}

func ioPipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, w
}
