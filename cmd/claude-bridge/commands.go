package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dignmodahau/idea-claude-code-gui/internal/attachments"
	"github.com/dignmodahau/idea-claude-code-gui/internal/bridge"
	"github.com/dignmodahau/idea-claude-code-gui/internal/config"
	"github.com/dignmodahau/idea-claude-code-gui/internal/locator"
	"github.com/dignmodahau/idea-claude-code-gui/internal/transcript"
	"github.com/dignmodahau/idea-claude-code-gui/internal/workdir"
)

// app bundles the process streams and logger for the command runners.
type app struct {
	stdout io.Writer
	stdin  io.Reader
	log    *slog.Logger
}

// sendOptions holds the optional flags of the send commands. The positional
// argument convention stays untouched for host compatibility; flags only
// tune behavior the host cannot express positionally.
type sendOptions struct {
	// Timeout is the wall-clock budget for the exchange.
	Timeout time.Duration
	// Fallback prefers the Messages API for plain-text sends.
	Fallback bool
}

// applySendFlags defines the flags shared by both send commands.
func applySendFlags(flags *pflag.FlagSet, opts *sendOptions) {
	flags.DurationVar(&opts.Timeout, "timeout", bridge.DefaultTimeout, "Wall-clock budget for the exchange")
	flags.BoolVar(&opts.Fallback, "fallback", false, "Prefer the direct API for plain-text sends")
}

// splitSendArgs consumes the known flags that precede the message and
// returns the positional tail untouched. The scan stops at the first token
// that is not a defined flag, so message text beginning with a dash is
// never mistaken for one.
func splitSendArgs(flags *pflag.FlagSet, args []string) ([]string, error) {
	for len(args) > 0 {
		if args[0] == "--" {
			return args[1:], nil
		}
		name, _, hasValue := strings.Cut(strings.TrimPrefix(args[0], "--"), "=")
		flag := flags.Lookup(name)
		if !strings.HasPrefix(args[0], "--") || flag == nil {
			return args, nil
		}
		take := 1
		if !hasValue && flag.Value.Type() != "bool" {
			if len(args) < 2 {
				return nil, fmt.Errorf("flag needs an argument: %s", args[0])
			}
			take = 2
		}
		if err := flags.Parse(args[:take]); err != nil {
			return nil, err
		}
		args = args[take:]
	}
	return args, nil
}

// sendPositionals validates the positional argument convention after the
// leading flags have been consumed.
func sendPositionals(flags *pflag.FlagSet, args []string) ([]string, error) {
	positionals, err := splitSendArgs(flags, args)
	if err != nil {
		return nil, err
	}
	if len(positionals) < 1 || len(positionals) > 5 {
		return nil, fmt.Errorf("accepts between 1 and 5 args, received %d", len(positionals))
	}
	return positionals, nil
}

// sendCommand sends a plain-text message:
// send <message> [sessionId] [cwd] [permissionMode] [model]
func sendCommand(a *app) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send <message> [sessionId] [cwd] [permissionMode] [model]",
		Short: "Send a message to the agent runtime",
		// Flags are scanned by hand so that arbitrary message text,
		// including text starting with a dash, stays positional.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			positionals, err := sendPositionals(cmd.Flags(), args)
			if err != nil {
				return err
			}
			return a.runSend(positionals, opts, false)
		},
	}
	applySendFlags(cmd.Flags(), opts)
	return cmd
}

// sendWithAttachmentsCommand sends a message whose attachments arrive over
// the configured side channel or legacy drop file.
func sendWithAttachmentsCommand(a *app) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:                "sendWithAttachments <message> [sessionId] [cwd] [permissionMode] [model]",
		Short:              "Send a message with multi-modal attachments",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			positionals, err := sendPositionals(cmd.Flags(), args)
			if err != nil {
				return err
			}
			return a.runSend(positionals, opts, true)
		},
	}
	applySendFlags(cmd.Flags(), opts)
	return cmd
}

// getSessionCommand replays a stored transcript as a single JSON line:
// getSession <sessionId> [cwd]
func getSessionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "getSession <sessionId> [cwd]",
		Short: "Print a stored session transcript",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGetSession(args)
		},
	}
}

// doctorCommand validates the bridge's environment without sending anything.
func doctorCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check bridge configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDoctor()
		},
	}
}

// runSend executes one exchange end to end.
func (a *app) runSend(args []string, opts *sendOptions, withAttachments bool) error {
	relay := bridge.NewRelay(a.stdout)

	creds, err := config.Resolve()
	if err != nil {
		// Credential problems are fatal before any network attempt, but
		// still end in a parseable record rather than a bare exit.
		return relay.Failure(err.Error())
	}
	store, err := transcript.NewStore()
	if err != nil {
		return relay.Failure(err.Error())
	}

	req := requestFromArgs(args)
	if withAttachments {
		req.Attachments = attachments.NewLoader(a.stdin).Load()
		a.log.Debug("attachments loaded", "count", len(req.Attachments))
	}

	b := &bridge.Bridge{
		Relay:          relay,
		Creds:          creds,
		Store:          store,
		Workdir:        workdir.NewResolver(),
		Locator:        locator.New(),
		Log:            a.log,
		Timeout:        opts.Timeout,
		PreferFallback: opts.Fallback || os.Getenv(forceFallbackEnv) != "",
	}
	return b.Send(context.Background(), req)
}

// sessionPayload is the getSession success line.
type sessionPayload struct {
	Success  bool              `json:"success"`
	Messages []json.RawMessage `json:"messages"`
}

// runGetSession prints the stored transcript for a session, exactly one
// JSON line either way.
func (a *app) runGetSession(args []string) error {
	relay := bridge.NewRelay(a.stdout)

	store, err := transcript.NewStore()
	if err != nil {
		return relay.Failure(err.Error())
	}
	project := workdir.NewResolver().Resolve(optArg(args, 1))

	entries, err := store.LoadRaw(args[0], project)
	if err != nil {
		return relay.Failure(err.Error())
	}
	if entries == nil {
		entries = []json.RawMessage{}
	}

	data, err := json.Marshal(sessionPayload{Success: true, Messages: entries})
	if err != nil {
		return relay.Failure(err.Error())
	}
	_, err = fmt.Fprintf(a.stdout, "%s\n", data)
	return err
}

// runDoctor reports the resolved configuration in human-readable form.
// This is the one command whose stdout is for people, not the plugin.
func (a *app) runDoctor() error {
	creds, err := config.Resolve()
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	fmt.Fprintf(a.stdout, "OK: API key from %s\n", creds.APIKeySource)
	endpoint := "custom"
	if creds.IsOfficialEndpoint() {
		endpoint = "official"
	}
	fmt.Fprintf(a.stdout, "OK: endpoint %s (%s, from %s)\n", creds.BaseURL, endpoint, creds.BaseURLSource)

	if executable := locator.New().Find(); executable != "" {
		fmt.Fprintf(a.stdout, "OK: runtime executable %s\n", executable)
	} else {
		fmt.Fprintln(a.stdout, "WARN: no runtime executable found; plain-text sends use the API fallback")
	}
	fmt.Fprintf(a.stdout, "OK: working directory %s\n", workdir.NewResolver().Resolve(""))
	return nil
}

// requestFromArgs maps the positional argument convention onto a request.
func requestFromArgs(args []string) *bridge.Request {
	return &bridge.Request{
		Text:            args[0],
		ResumeSessionID: normalizeSessionArg(optArg(args, 1)),
		CWD:             optArg(args, 2),
		PermissionMode:  parsePermissionMode(optArg(args, 3)),
		Model:           optArg(args, 4),
	}
}

// optArg returns the positional argument at index or empty.
func optArg(args []string, index int) string {
	if index < len(args) {
		return args[index]
	}
	return ""
}

// normalizeSessionArg treats host placeholder values as no session.
func normalizeSessionArg(value string) string {
	switch strings.TrimSpace(value) {
	case "", "null", "undefined":
		return ""
	}
	return strings.TrimSpace(value)
}

// parsePermissionMode maps loosely spelled mode names onto the runtime's
// canonical ones. Unrecognized input degrades to the interactive default.
func parsePermissionMode(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "default":
		return "default"
	case "acceptedits":
		return "acceptEdits"
	case "plan":
		return "plan"
	case "bypasspermissions", "dontask":
		return "bypassPermissions"
	default:
		return "default"
	}
}
