package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/fractalmind-ai/voidbots/pkg/protocol"
)

func newWatchCmd() *cobra.Command {
	var url string
	var status bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print events streamed by a running gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd.Context(), url, status, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://127.0.0.1:18790/ws", "gateway WebSocket URL")
	cmd.Flags().BoolVar(&status, "status", false, "request the current status before streaming")
	return cmd
}

// watch prints one JSON line per gateway message until ctx is done or the
// gateway closes the connection.
func watch(ctx context.Context, url string, status bool, out io.Writer) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if status {
		if err := conn.WriteJSON(&protocol.Message{Kind: protocol.MessageKindStatus}); err != nil {
			return fmt.Errorf("write failed: %w", err)
		}
	}

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
		fmt.Fprintln(out, string(msg))
	}
}
