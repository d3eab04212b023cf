package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/stemsi/exstem-cbt/internal/service"
)

func newTakeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "take",
		Short: "Open an exam session in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			e, err := opts.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runTake(ctx, e, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runTake(ctx context.Context, e *env, in io.Reader, out io.Writer) error {
	heartbeat := service.NewHeartbeatService(e.store, e.cfg.HeartbeatInterval, e.log)
	sessions := service.NewExamSessionService(e.store, heartbeat,
		service.SessionConfig{SubmitTimeout: e.cfg.SubmitTimeout}, e.cfg.LobbyPollInterval, e.log)

	events := make(chan service.Event, 64)
	notify := func(ev service.Event) {
		select {
		case events <- ev:
		default:
			// Every command re-renders from the session anyway.
		}
	}

	sess, err := sessions.Open(ctx, e.user, notify)
	if err != nil {
		return err
	}
	defer sess.Close()

	term := NewTerminal(out, sess)
	term.Render(sess.Exam.Snapshot())

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil

		case ev := <-events:
			switch {
			case ev.Snapshot != nil:
				term.Render(*ev.Snapshot)
			case ev.Tick != nil:
				term.RenderTick(*ev.Tick)
			}

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := term.Handle(ctx, line)
			if err != nil {
				term.Fail(err)
			}
			if quit {
				return nil
			}
			term.Render(sess.Exam.Snapshot())
		}
	}
}
