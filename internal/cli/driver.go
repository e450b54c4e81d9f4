package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"livequiz/internal/chat"
	"livequiz/internal/session"
)

var errQuit = errors.New("quit")

type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

// commandSet maps the first word of an input line to its handler. fallback,
// when set, receives lines whose first word is unknown.
type commandSet struct {
	commands map[string]command
	fallback func(ctx context.Context, name string, args []string) (bool, error)
}

func (s commandSet) exec(ctx context.Context, out io.Writer, name string, args []string) error {
	switch name {
	case "quit", "exit":
		return errQuit
	case "help", "?":
		s.help(out)
		return nil
	}
	if c, ok := s.commands[name]; ok {
		return c.run(ctx, args)
	}
	if s.fallback != nil {
		if handled, err := s.fallback(ctx, name, args); handled {
			return err
		}
	}
	return fmt.Errorf("unknown command %q, try help", name)
}

func (s commandSet) help(out io.Writer) {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-10s %s\n", name, s.commands[name].usage)
	}
	fmt.Fprintf(out, "  %-10s %s\n", "quit", "leave the room")
}

// readLines feeds input lines into a channel until EOF. A blocked read
// cannot be interrupted, so this goroutine is left out of the errgroup.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

// drive executes lines until quit, EOF or cancellation. Command errors are
// printed and do not stop the loop.
func drive(ctx context.Context, lines <-chan string, out io.Writer, set commandSet) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			err := set.exec(ctx, out, strings.ToLower(fields[0]), fields[1:])
			switch {
			case errors.Is(err, errQuit):
				return errQuit
			case err != nil:
				fmt.Fprintln(out, bad.Sprint(err.Error()))
			}
		}
	}
}

var errFinished = errors.New("session finished")

// runInteractive renders snapshots and chat while executing input lines. It
// returns once the session finishes, the user quits or ctx ends.
func runInteractive(ctx context.Context, in io.Reader, out io.Writer, c *session.Controller, set commandSet) error {
	out = &syncWriter{w: out}
	g, ctx := errgroup.WithContext(ctx)

	updates, cancel := c.Updates()
	defer cancel()
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-updates:
				if !ok {
					return nil
				}
				renderSnapshot(out, snap)
				if snap.Phase == session.PhaseFinished {
					return errFinished
				}
			}
		}
	})

	if sub := c.Chat(); sub != nil {
		chatUpdates, cancelChat := sub.Updates()
		defer cancelChat()
		g.Go(func() error {
			var prev chat.Snapshot
			first := true
			for {
				select {
				case <-ctx.Done():
					return nil
				case snap, ok := <-chatUpdates:
					if !ok {
						return nil
					}
					if first {
						prev, first = snap, false
						continue
					}
					renderChat(out, prev, snap)
					prev = snap
				}
			}
		})
	}

	lines := readLines(in)
	g.Go(func() error {
		return drive(ctx, lines, out, set)
	})

	err := g.Wait()
	if errors.Is(err, errFinished) || errors.Is(err, errQuit) {
		log.Debug().Err(err).Msg("interactive session done")
		return nil
	}
	return err
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
