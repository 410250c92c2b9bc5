package platform

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	cr "github.com/yamnikov-oleg/rooster/internal/crypto"
)

var ErrNoTerminal = errors.New("platform: stdin is not a terminal")

// TerminalPassphrase prompts on stderr and reads a passphrase from the
// terminal without echo. It implements vault.PassphraseSource.
type TerminalPassphrase struct {
	Prompt string
	// Confirm asks twice and fails if the answers differ.
	Confirm bool
	// AllowPipe reads a line from stdin when it is not a terminal.
	AllowPipe bool
}

func (t TerminalPassphrase) Passphrase(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := t.read(t.Prompt)
	if err != nil || !t.Confirm {
		return pw, err
	}
	again, err := t.read("Repeat: ")
	if err != nil {
		cr.Zero(pw)
		return nil, err
	}
	defer cr.Zero(again)
	if !bytes.Equal(pw, again) {
		cr.Zero(pw)
		return nil, errors.New("passphrases do not match")
	}
	return pw, nil
}

func (t TerminalPassphrase) read(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if !t.AllowPipe {
			return nil, ErrNoTerminal
		}
		if stdinReader == nil {
			stdinReader = bufio.NewReader(os.Stdin)
		}
		return readLine(stdinReader)
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return pw, nil
}

// stdinReader is shared so consecutive prompts consume consecutive lines.
var stdinReader *bufio.Reader

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && (err != io.EOF || len(line) == 0) {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return bytes.TrimRight(line, "\r\n"), nil
}
