package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"pairshare/models"
	"pairshare/session"
	"pairshare/transfer"
)

// peerLookupGrace is added to the scan timeout while waiting for a peer.
const peerLookupGrace = 2 * time.Second

func newSendCmd() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "send <peer> [payload]",
		Short: "Join a peer's group and send one identifier or file",
		Long: `Discover nearby group owners, join the one whose device name or address
matches <peer> and send either the payload argument or, with --file, a file.

Examples:
  pairshare send kitchen-pi plant-42
  pairshare send kitchen-pi --file ./photo.jpg`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := payloadFromArgs(args[1:], filePath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSend(ctx, cmd, args[0], payload)
		},
	}
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "send a file instead of an identifier")
	return cmd
}

func payloadFromArgs(args []string, filePath string) (models.Payload, error) {
	switch {
	case filePath != "" && len(args) > 0:
		return models.Payload{}, errors.New("pass either a payload or --file, not both")
	case filePath != "":
		return transfer.PrepareFile(filePath)
	case len(args) == 0:
		return models.Payload{}, errors.New("a payload or --file is required")
	}
	if err := transfer.ValidateText(args[0]); err != nil {
		return models.Payload{}, err
	}
	return models.TextPayload(args[0]), nil
}

func runSend(ctx context.Context, cmd *cobra.Command, target string, payload models.Payload) error {
	options := appOptions{}
	var bar *progressbar.ProgressBar
	if payload.Type == models.PayloadFile {
		bar = progressbar.DefaultBytes(payload.Size, "sending "+payload.Name)
		options.onProgress = func(progress transfer.Progress) {
			if progress.Direction == transfer.DirectionSend {
				_ = bar.Set64(progress.Bytes)
			}
		}
	}

	a, err := openApp(options)
	if err != nil {
		return err
	}
	defer a.Close()

	sess := a.session
	if err := sess.SelectRole(session.RoleSender); err != nil {
		return err
	}

	peer, err := findPeer(ctx, sess, target)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Joining %s (%s)\n", peer.Name, peer.Address)

	if err := sess.Connect(ctx, peer.Address); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	joinCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	group, err := sess.AwaitGroupInfo(joinCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("wait for group: %w", err)
	}
	logger.Debug("joined group")

	sub := sess.Subscribe(session.TopicTransfer)
	defer sub.Unsubscribe()

	started, err := sess.Send(payload)
	if err != nil {
		return err
	}
	if !started {
		return errors.New("a send is already in flight")
	}

	event, err := waitForEvent(ctx, sub, func(event session.Event) bool {
		return event.Outcome.Direction == transfer.DirectionSend
	})
	if err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
	}

	outcome := event.Outcome
	if outcome.Status != transfer.StatusSuccess {
		return fmt.Errorf("send to %s failed: %s", group.OwnerAddress, outcome.Message())
	}
	fmt.Fprintln(cmd.OutOrStdout(), outcome.Message())
	return nil
}

// findPeer runs one discovery round and returns the first peer whose name or
// address equals target.
func findPeer(ctx context.Context, sess *session.Session, target string) (models.PeerDevice, error) {
	sub := sess.Subscribe(session.TopicPeers)
	defer sub.Unsubscribe()

	if err := sess.Discover(ctx); err != nil {
		return models.PeerDevice{}, fmt.Errorf("discover: %w", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout()+peerLookupGrace)
	defer cancel()

	var found models.PeerDevice
	_, err := waitForEvent(lookupCtx, sub, func(event session.Event) bool {
		for _, peer := range event.Peers {
			if peer.Name == target || peer.Address == target {
				found = peer
				return true
			}
		}
		return false
	})
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return models.PeerDevice{}, fmt.Errorf("%w: %q not found nearby", session.ErrUnknownPeer, target)
	}
	if err != nil {
		return models.PeerDevice{}, err
	}
	return found, nil
}
