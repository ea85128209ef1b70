package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pairshare/models"
	"pairshare/session"
)

func newPeersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "Run one discovery round and list nearby group owners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.session.RadioEnabled() {
				return errors.New("wireless radio is disabled")
			}
			peers, err := discoverRound(ctx, a.session)
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No peers found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS\tSTATUS")
			for _, peer := range peers {
				fmt.Fprintf(w, "%s\t%s\t%s\n", peer.Name, peer.Address, peer.Status)
			}
			return w.Flush()
		},
	}
}

// discoverRound returns the peer list published by one scan, or an empty
// list when the scan finds nothing.
func discoverRound(ctx context.Context, sess *session.Session) ([]models.PeerDevice, error) {
	sub := sess.Subscribe(session.TopicPeers)
	defer sub.Unsubscribe()

	if err := sess.Discover(ctx); err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	roundCtx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout()+peerLookupGrace)
	defer cancel()

	event, err := waitForEvent(roundCtx, sub, func(event session.Event) bool {
		return len(event.Peers) > 0
	})
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return event.Peers, nil
}
