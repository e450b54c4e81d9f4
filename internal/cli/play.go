package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"livequiz/internal/config"
	"livequiz/internal/powerup"
	"livequiz/internal/session"
)

type sessionFlags struct {
	url, token, room, name string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "websocket url of the quiz server")
	cmd.Flags().StringVar(&f.token, "token", "", "authentication token")
	cmd.Flags().StringVar(&f.room, "room", "", "room code")
	cmd.Flags().StringVar(&f.name, "name", "", "display name")
}

// apply overrides cfg with the flags that were set.
func (f *sessionFlags) apply(cfg config.Config) (config.Config, error) {
	if f.url != "" {
		cfg.Server.URL = f.url
	}
	if f.token != "" {
		cfg.Server.Token = f.token
	}
	if f.room != "" {
		cfg.Server.RoomCode = f.room
	}
	if f.name != "" {
		cfg.Server.DisplayName = f.name
	}
	if cfg.Server.RoomCode == "" {
		return cfg, errors.New("room code required (--room or server.room_code)")
	}
	cfg.Server.RoomCode = strings.ToUpper(cfg.Server.RoomCode)
	return cfg, nil
}

// NewPlayCmd joins a room as a participant.
func NewPlayCmd(cfg *config.Config) *cobra.Command {
	flags := &sessionFlags{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a room and answer questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.apply(*cfg)
			if err != nil {
				return err
			}
			return runPlay(cmd.Context(), c, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

func runPlay(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	transport := newTransport(cfg)
	defer transport.Close()

	p := session.NewParticipant(transport, sessionOptions(cfg, st))
	defer p.Leave()
	if err := p.Join(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "type help for commands")
	return runInteractive(ctx, in, out, p.Controller, participantCommands(p, out))
}

func participantCommands(p *session.Participant, out io.Writer) commandSet {
	option := func(args []string) (int, error) {
		if len(args) != 1 {
			return 0, errors.New("expected an option number")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, fmt.Errorf("option %q is not a number", args[0])
		}
		return n - 1, nil
	}
	use := func(t powerup.Type) command {
		return command{
			usage: "use the " + string(t) + " power-up",
			run: func(ctx context.Context, _ []string) error {
				_, err := p.UsePowerUp(ctx, t)
				return err
			},
		}
	}

	set := commandSet{commands: map[string]command{
		"select": {usage: "N  mark option N", run: func(_ context.Context, args []string) error {
			i, err := option(args)
			if err != nil {
				return err
			}
			return p.Select(i)
		}},
		"submit": {usage: "send the marked option", run: func(ctx context.Context, _ []string) error {
			return p.Submit(ctx)
		}},
		"ready": {usage: "mark yourself ready in the lobby", run: func(ctx context.Context, _ []string) error {
			return p.SetReady(ctx, true)
		}},
		"unready": {usage: "clear the ready mark", run: func(ctx context.Context, _ []string) error {
			return p.SetReady(ctx, false)
		}},
		"powerups": {usage: "show remaining power-ups", run: func(context.Context, []string) error {
			renderPowerUps(out, p.PowerUps())
			return nil
		}},
		"5050":   use(powerup.FiftyFifty),
		"freeze": use(powerup.TimeFreeze),
		"double": use(powerup.DoublePoints),
	}}
	addChatCommands(set, p.Controller)

	// a bare number answers at once
	set.fallback = func(ctx context.Context, name string, _ []string) (bool, error) {
		n, err := strconv.Atoi(name)
		if err != nil {
			return false, nil
		}
		return true, p.SubmitAnswer(ctx, n-1)
	}
	return set
}

func addChatCommands(set commandSet, c *session.Controller) {
	set.commands["say"] = command{usage: "TEXT  post to room chat", run: func(ctx context.Context, args []string) error {
		sub := c.Chat()
		if sub == nil {
			return errors.New("not joined")
		}
		return sub.Send(ctx, strings.Join(args, " "))
	}}
	set.commands["react"] = command{usage: "EMOJI  send a reaction", run: func(ctx context.Context, args []string) error {
		sub := c.Chat()
		if sub == nil {
			return errors.New("not joined")
		}
		return sub.React(ctx, strings.Join(args, " "))
	}}
}
