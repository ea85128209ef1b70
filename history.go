package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pairshare/storage"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit     int
		useJSON   bool
		seenPeers bool
		latest    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transfers",
		Long: `Show recent transfers recorded in the local database.

Examples:
  pairshare history              # Show last 10 transfers
  pairshare history -n 50        # Show last 50 transfers
  pairshare history --peers      # Show devices seen during discovery
  pairshare history --latest     # Print the last payload received`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if latest {
				return printLatestReceived(out, store, useJSON)
			}
			if seenPeers {
				peers, err := store.ListSeenPeers()
				if err != nil {
					return err
				}
				if useJSON {
					return json.NewEncoder(out).Encode(peers)
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tADDRESS\tSTATUS\tLAST SEEN")
				for _, peer := range peers {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", peer.DeviceName, peer.DeviceAddress, peer.LastStatus, formatMillis(peer.LastSeen))
				}
				return w.Flush()
			}

			transfers, err := store.ListTransfers(limit)
			if err != nil {
				return err
			}
			if useJSON {
				return json.NewEncoder(out).Encode(transfers)
			}
			if len(transfers) == 0 {
				fmt.Fprintln(out, "No transfers yet.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tROLE\tSTATUS\tPEER\tPAYLOAD")
			for _, record := range transfers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					formatMillis(record.StartedAt),
					record.Role,
					record.Status,
					record.PeerAddress,
					describePayload(record),
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of transfers to display")
	cmd.Flags().BoolVar(&useJSON, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&seenPeers, "peers", false, "list devices seen during discovery instead")
	cmd.Flags().BoolVar(&latest, "latest", false, "print only the last successfully received payload")
	return cmd
}

// printLatestReceived writes the identifier, or the stored file path, of the
// most recent successful receive.
func printLatestReceived(out io.Writer, store *storage.Store, useJSON bool) error {
	record, err := store.LatestReceived()
	if errors.Is(err, storage.ErrNotFound) {
		return errors.New("nothing received yet")
	}
	if err != nil {
		return err
	}
	if useJSON {
		return json.NewEncoder(out).Encode(record)
	}
	if record.StoredPath != "" {
		_, err = fmt.Fprintln(out, record.StoredPath)
		return err
	}
	_, err = fmt.Fprintln(out, record.PayloadText)
	return err
}

func describePayload(record storage.Transfer) string {
	switch {
	case record.Filename != "":
		return fmt.Sprintf("%s (%d bytes)", record.Filename, record.Filesize)
	case record.PayloadText != "":
		return record.PayloadText
	case record.Error != "":
		return "error: " + record.Error
	default:
		return "-"
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}
