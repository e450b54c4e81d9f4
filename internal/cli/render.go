package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"livequiz/internal/chat"
	"livequiz/internal/powerup"
	"livequiz/internal/session"
)

var (
	phaseColor = map[session.Phase]*color.Color{
		session.PhaseConnecting:   color.New(color.FgHiBlack),
		session.PhaseLobby:        color.New(color.FgCyan),
		session.PhaseQuestion:     color.New(color.FgYellow, color.Bold),
		session.PhaseAnswerReveal: color.New(color.FgMagenta),
		session.PhasePaused:       color.New(color.FgBlue),
		session.PhaseFinished:     color.New(color.FgGreen, color.Bold),
		session.PhaseDisconnected: color.New(color.FgRed, color.Bold),
	}
	good  = color.New(color.FgGreen)
	bad   = color.New(color.FgRed)
	faint = color.New(color.FgHiBlack)
)

const boardRows = 5

// renderSnapshot writes one frame of the terminal view.
func renderSnapshot(w io.Writer, snap session.Snapshot) {
	c := phaseColor[snap.Phase]
	if c == nil {
		c = color.New()
	}
	header := fmt.Sprintf("[%s] room %s", snap.Phase, snap.Session.RoomCode)
	fmt.Fprintln(w, c.Sprint(header))

	switch snap.Phase {
	case session.PhaseLobby:
		if snap.Countdown > 0 {
			fmt.Fprintf(w, "starting in %d\n", snap.Countdown)
		}
		for _, p := range snap.Participants() {
			mark := " "
			if p.Ready {
				mark = good.Sprint("✓")
			}
			fmt.Fprintf(w, " %s %s\n", mark, p.Username)
		}
	case session.PhaseQuestion, session.PhasePaused:
		renderQuestion(w, snap)
	case session.PhaseAnswerReveal:
		renderQuestion(w, snap)
		renderReveal(w, snap)
		renderBoard(w, snap)
	case session.PhaseFinished:
		if snap.EndReason != "" {
			fmt.Fprintf(w, "ended: %s\n", snap.EndReason)
		}
		renderBoard(w, snap)
	case session.PhaseDisconnected:
		fmt.Fprintln(w, bad.Sprint("connection lost"))
	}
}

func renderQuestion(w io.Writer, snap session.Snapshot) {
	if snap.Question == nil {
		return
	}
	clock := fmt.Sprintf("%ds", snap.Remaining)
	if snap.Frozen {
		clock += " (frozen)"
	}
	fmt.Fprintf(w, "Q%d/%d  %s\n", snap.QuestionIndex+1, snap.TotalQuestions, clock)
	fmt.Fprintln(w, snap.Question.Prompt)
	for i, opt := range snap.Question.Options {
		line := fmt.Sprintf("  %d) %s", i+1, opt.Text)
		switch {
		case snap.OptionHidden(i):
			line = faint.Sprint(line + "  (removed)")
		case snap.Submission != nil && snap.Submission.SelectedIndex == i:
			line += "  <- submitted"
		case snap.Pending != nil && snap.Pending.SelectedIndex == i:
			line += "  <- sending"
		case snap.Selected != nil && *snap.Selected == i:
			line += "  <-"
		}
		fmt.Fprintln(w, line)
	}
	if active := snap.PowerUps.ActiveTypes(); len(active) > 0 {
		names := make([]string, 0, len(active))
		for _, t := range active {
			names = append(names, string(t))
		}
		fmt.Fprintf(w, "power-ups: %s\n", strings.Join(names, ", "))
	}
}

func renderReveal(w io.Writer, snap session.Snapshot) {
	r := snap.Reveal
	if r == nil {
		return
	}
	answer := r.CorrectAnswer
	if answer == "" && snap.Question != nil && r.CorrectIndex >= 0 && r.CorrectIndex < len(snap.Question.Options) {
		answer = snap.Question.Options[r.CorrectIndex].Text
	}
	fmt.Fprintf(w, "answer: %s\n", answer)
	switch {
	case r.Submitted == nil:
		fmt.Fprintln(w, faint.Sprint("no answer"))
	case r.Correct:
		fmt.Fprintln(w, good.Sprintf("correct +%d  streak %d", r.Points, snap.Streak))
	default:
		fmt.Fprintln(w, bad.Sprint("wrong"))
	}
	if r.Explanation != "" {
		fmt.Fprintln(w, r.Explanation)
	}
}

func renderBoard(w io.Writer, snap session.Snapshot) {
	entries := snap.Board.Top(boardRows)
	if len(entries) == 0 {
		return
	}
	self := snap.Self.Key()
	for _, e := range entries {
		line := fmt.Sprintf("%3d. %-16s %6d", e.Rank, e.Username, e.Score)
		if e.Key() == self {
			line = good.Sprint(line)
		}
		fmt.Fprintln(w, line)
	}
	if rank := snap.Board.Rank(self); rank > boardRows {
		fmt.Fprintf(w, "you: #%d\n", rank)
	}
}

func renderPowerUps(w io.Writer, s powerup.State) {
	parts := make([]string, 0, 3)
	for _, t := range powerup.Types() {
		parts = append(parts, fmt.Sprintf("%s x%d", t, s.Remaining(t)))
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))
}

func renderChat(w io.Writer, prev, next chat.Snapshot) {
	for _, m := range next.Messages[min(len(prev.Messages), len(next.Messages)):] {
		name := m.Username
		if m.IsHost {
			name += " (host)"
		}
		fmt.Fprintf(w, "%s: %s\n", faint.Sprint(name), m.Message)
	}
	// reactions are a bounded window, so only the newest is compared
	if n := len(next.Reactions); n > 0 {
		last := next.Reactions[n-1]
		if m := len(prev.Reactions); m == 0 || prev.Reactions[m-1] != last {
			fmt.Fprintf(w, "%s %s\n", faint.Sprint(last.Username), last.Emoji)
		}
	}
	if prev.Enabled != next.Enabled {
		state := "off"
		if next.Enabled {
			state = "on"
		}
		fmt.Fprintf(w, "chat %s\n", state)
	}
}
