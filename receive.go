package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pairshare/session"
)

func newReceiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "receive",
		Short: "Create a group and wait for one payload",
		Long: `Create a group as its owner, listen on the transfer port and wait for a
single identifier or file. The command exits after the first payload or when
the accept timeout passes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runReceive(ctx, cmd)
		},
	}
}

func runReceive(ctx context.Context, cmd *cobra.Command) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	sess := a.session
	sub := sess.Subscribe(session.TopicReceiverState, session.TopicGroupStatus, session.TopicLog)
	defer sub.Unsubscribe()

	if err := sess.SelectRole(session.RoleReceiver); err != nil {
		return err
	}
	if err := sess.CreateGroup(ctx); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Group:     %s\n", sess.GroupStatus().GroupName)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening: port %d for %s\n", cfg.TransferPort, cfg.AcceptTimeout())

	event, err := waitForEvent(ctx, sub, func(event session.Event) bool {
		if event.Topic == session.TopicLog && verbose {
			fmt.Fprintln(cmd.ErrOrStderr(), event.Log)
		}
		if event.Topic != session.TopicReceiverState {
			return false
		}
		kind := event.ReceiverState.Kind
		return kind == session.ReceiverDataReceived || kind == session.ReceiverError
	})
	if err != nil {
		return err
	}

	state := event.ReceiverState
	if state.Kind == session.ReceiverError {
		if state.TimedOut {
			return errors.New("no sender connected before the timeout")
		}
		return fmt.Errorf("receive failed: %s", state.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), state.Data)
	return nil
}

// waitForEvent returns the first event on sub that match accepts.
func waitForEvent(ctx context.Context, sub *session.Subscription, match func(session.Event) bool) (session.Event, error) {
	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return session.Event{}, session.ErrClosed
			}
			if match(event) {
				return event, nil
			}
		case <-ctx.Done():
			return session.Event{}, ctx.Err()
		}
	}
}
