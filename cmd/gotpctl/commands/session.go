package commands

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// errDestRequired is returned when --dest is missing from a send command.
var errDestRequired = errors.New("--dest flag is required")

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage transport-protocol sessions",
	}

	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionSendCmd())
	cmd.AddCommand(sessionCancelCmd())

	return cmd
}

// --- session list ---

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active transport-protocol sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			sessions, err := client.ListSessions()
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out, err := formatSessions(sessions, outputFormat)
			if err != nil {
				return fmt.Errorf("format sessions: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

// --- session send ---

func sessionSendCmd() *cobra.Command {
	var (
		dest    int
		pgn     int
		file    string
		hexData string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a multi-packet message over the transport protocol",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if dest < 0 {
				return errDestRequired
			}

			payload, err := loadPayload(file, hexData)
			if err != nil {
				return fmt.Errorf("load payload: %w", err)
			}

			resp, err := client.Send(dest, pgn, base64.StdEncoding.EncodeToString(payload))
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}

			fmt.Printf("Session started: peer=%d role=%s bytes=%d\n", resp.Peer, resp.Role, len(payload))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&dest, "dest", -1, "destination source address, 0-255 (255 = BAM broadcast) (required)")
	flags.IntVar(&pgn, "pgn", 0, "parameter group number of the multi-packet message")
	flags.StringVar(&file, "file", "", "path to a file containing the message payload")
	flags.StringVar(&hexData, "hex", "", "message payload as a hex string, e.g. deadbeef")

	return cmd
}

// loadPayload reads the message payload from file, or decodes it from a hex
// string, in that precedence order.
func loadPayload(file, hexData string) ([]byte, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		return data, nil
	}

	if hexData != "" {
		return decodeHex(hexData)
	}

	return nil, errors.New("either --file or --hex is required")
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex string has odd length: %d", len(s))
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := hexDigit(s[2*i])
		if err != nil {
			return nil, err
		}
		lo, err := hexDigit(s[2*i+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexDigit(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit %q", c)
	}
}

// --- session cancel ---

func sessionCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <peer>",
		Short: "Cancel the in-progress session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var peer int
			if _, err := fmt.Sscanf(args[0], "%d", &peer); err != nil {
				return fmt.Errorf("parse peer %q: %w", args[0], err)
			}

			if err := client.Cancel(peer); err != nil {
				return fmt.Errorf("cancel: %w", err)
			}

			fmt.Printf("Session with peer %d cancelled.\n", peer)
			return nil
		},
	}
}
