package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// promptPassword reads a secret without echo when stdin is a terminal, and a
// plain line otherwise (pipes, tests).
func promptPassword(cmd *cobra.Command, app *App, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	if app.stdin == nil {
		app.stdin = bufio.NewReader(in)
	}
	line, err := app.stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%s no input", strings.TrimSpace(prompt))
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// secret returns flagVal when set, otherwise prompts.
func secret(cmd *cobra.Command, app *App, flagVal, prompt string) (string, error) {
	if flagVal != "" {
		return flagVal, nil
	}
	return app.readPassword(cmd, prompt)
}
