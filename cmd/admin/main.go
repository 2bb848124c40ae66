// Command admin manages accounts and runs attendance files from the shell.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/attendwatch/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &cliEnv{
		loadConfig:   config.Load,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		readPassword: promptPassword(os.Stdin, os.Stderr),
	}
	if err := newRootCmd(env).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// promptPassword reads without echo from a terminal, or one line from a pipe.
func promptPassword(in *os.File, prompt io.Writer) func(label string) (string, error) {
	reader := bufio.NewReader(in)
	return func(label string) (string, error) {
		fd := int(in.Fd())
		if !term.IsTerminal(fd) {
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return "", fmt.Errorf("read password: %w", err)
			}
			return strings.TrimRight(line, "\r\n"), nil
		}
		fmt.Fprintf(prompt, "%s: ", label)
		pwd, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pwd), nil
	}
}
