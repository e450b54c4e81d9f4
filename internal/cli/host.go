package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"livequiz/internal/config"
	"livequiz/internal/session"
)

// NewHostCmd joins a room as its host and drives the game.
func NewHostCmd(cfg *config.Config) *cobra.Command {
	flags := &sessionFlags{}
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run a room: start, pause, skip and end the quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.apply(*cfg)
			if err != nil {
				return err
			}
			return runHost(cmd.Context(), c, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

func runHost(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	transport := newTransport(cfg)
	defer transport.Close()

	opts := sessionOptions(cfg, st)
	opts.Ledger = nil
	h := session.NewHost(transport, opts)
	defer h.Leave()
	if err := h.Join(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "type help for commands")
	return runInteractive(ctx, in, out, h.Controller, hostCommands(h, out))
}

func hostCommands(h *session.Host, out io.Writer) commandSet {
	simple := func(usage string, fn func(context.Context) error) command {
		return command{usage: usage, run: func(ctx context.Context, _ []string) error { return fn(ctx) }}
	}
	set := commandSet{commands: map[string]command{
		"start":  simple("start the quiz", h.Start),
		"next":   simple("skip to the next question", h.ForceNext),
		"pause":  simple("pause the game", h.Pause),
		"resume": simple("resume the game", h.Resume),
		"end":    simple("end the session for everyone", h.End),
		"kick": {usage: "USER_ID  remove a player", run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("expected a user id")
			}
			return h.Kick(ctx, args[0])
		}},
		"chat": {usage: "on|off  switch room chat", run: func(ctx context.Context, args []string) error {
			if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
				return errors.New("expected on or off")
			}
			return h.ToggleChat(ctx, args[0] == "on")
		}},
		"players": {usage: "list players with their ids", run: func(context.Context, []string) error {
			for _, p := range h.Snapshot().Participants() {
				fmt.Fprintf(out, "  %-20s %-16s %6d\n", p.Key(), p.Username, p.Score)
			}
			return nil
		}},
	}}
	addChatCommands(set, h.Controller)
	return set
}
