// claude-bridge is a per-invocation process that lets a desktop IDE plugin
// converse with the Claude Code agent runtime. It reads one command from
// argv, runs a single exchange, emits a tagged line protocol on stdout, and
// exits. Session continuity across invocations lives in JSONL transcripts.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dignmodahau/idea-claude-code-gui/internal/bridge"
	"github.com/dignmodahau/idea-claude-code-gui/internal/config"
)

// version is the bridge build version.
const version = "0.1.0"

// debugEnv enables the debug log file when set to any non-empty value.
const debugEnv = "CLAUDE_BRIDGE_DEBUG"

// forceFallbackEnv routes plain-text sends through the Messages API even
// when a runtime executable is installed. Honored only on the official
// endpoint.
const forceFallbackEnv = "CLAUDE_BRIDGE_FORCE_FALLBACK"

// errCommandFailed marks invocations that must exit non-zero after the
// terminal JSON record has already been written.
var errCommandFailed = errors.New("command failed")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stdin))
}

// run executes one invocation and returns the process exit code. Soft
// failures are reported on the protocol and exit 0; only unknown commands
// and uncaught faults exit 1.
func run(args []string, stdout io.Writer, stdin io.Reader) (code int) {
	relay := bridge.NewRelay(stdout)
	defer func() {
		// A panic anywhere must still leave the host with a terminal
		// record it can parse.
		if fault := recover(); fault != nil {
			relay.Failure(fmt.Sprintf("unexpected failure: %v", fault))
			code = 1
		}
	}()

	a := &app{
		stdout: stdout,
		stdin:  stdin,
		log:    newLogger(),
	}

	root := newRootCommand(a, relay)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errCommandFailed) {
			relay.Failure(err.Error())
		}
		return 1
	}
	return 0
}

// newRootCommand wires the command tree. The root itself only handles the
// unknown-command contract; real work lives in the subcommands.
func newRootCommand(a *app, relay *bridge.Relay) *cobra.Command {
	root := &cobra.Command{
		Use:           "claude-bridge <command>",
		Short:         "IDE-to-Claude-Code bridge process",
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "(none)"
			if len(args) > 0 {
				name = args[0]
			}
			relay.Failure(fmt.Sprintf("Unknown command: %s", name))
			return errCommandFailed
		},
	}

	root.AddCommand(sendCommand(a))
	root.AddCommand(sendWithAttachmentsCommand(a))
	root.AddCommand(getSessionCommand(a))
	root.AddCommand(doctorCommand(a))
	return root
}

// newLogger builds the diagnostic logger. Stdout carries the host protocol,
// so logs go to a debug file when enabled and nowhere otherwise.
func newLogger() *slog.Logger {
	if os.Getenv(debugEnv) == "" {
		return slog.New(slog.DiscardHandler)
	}
	base, err := config.BaseDir()
	if err != nil {
		return slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return slog.New(slog.DiscardHandler)
	}
	file, err := os.OpenFile(filepath.Join(base, "debug.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return slog.New(slog.DiscardHandler)
	}
	// The file descriptor lives until process exit; each invocation is
	// short enough that closing it explicitly buys nothing.
	return slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
