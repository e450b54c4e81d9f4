package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"livequiz/internal/config"
	"livequiz/internal/infra/memory"
	"livequiz/internal/session"
)

// NewReplayCmd rebuilds the final state of recorded rooms from the journal.
func NewReplayCmd(cfg *config.Config) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "replay ROOM...",
		Short: "Rebuild a session from its recorded frames",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := session.Role(role)
			if r != session.RoleParticipant && r != session.RoleHost {
				return fmt.Errorf("unknown role %q", role)
			}
			st, err := openStores(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if st.journal == nil {
				return errors.New("no journal configured: set postgres.url or redis.addr")
			}
			loader := memory.NewJournalCache(st.journal, time.Minute)
			return replayRooms(cmd.Context(), loader, r, args, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&role, "role", string(session.RoleParticipant), "view to rebuild: participant or host")
	return cmd
}

// replayRooms folds each room's journal and prints the resulting views in
// argument order.
func replayRooms(ctx context.Context, loader memory.JournalLoader, role session.Role, rooms []string, out io.Writer) error {
	states := make([]session.State, len(rooms))
	discarded := make([]int, len(rooms))

	g, ctx := errgroup.WithContext(ctx)
	for i, room := range rooms {
		i, room := i, strings.ToUpper(room)
		g.Go(func() error {
			entries, err := loader.Load(ctx, room)
			if err != nil {
				return fmt.Errorf("load %s: %w", room, err)
			}
			state, errs := session.ReplayJournal(role, entries)
			for _, err := range errs {
				log.Debug().Err(err).Str("room_code", room).Msg("replay skipped entry")
			}
			states[i], discarded[i] = state, len(errs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, state := range states {
		renderSnapshot(out, session.Snapshot{State: state, Remaining: state.TimeRemaining})
		fmt.Fprintf(out, "%d entries skipped\n", discarded[i])
	}
	return nil
}
