package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fractalmind-ai/voidbots/pkg/voidbots"
)

func newStatsCmd(flags *globalFlags) *cobra.Command {
	var servers, shards int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Post server and shard counts once",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(flags)
			if err != nil {
				return err
			}
			text, err := client.PostStats(cmd.Context(), servers, shards)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().IntVar(&servers, "servers", 0, "server count to report")
	cmd.Flags().IntVar(&shards, "shards", 1, "shard count to report")
	_ = cmd.MarkFlagRequired("servers")
	return cmd
}

func newVotedCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "voted <user-id>",
		Short: "Check whether a user voted in the last 12 hours",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(flags)
			if err != nil {
				return err
			}
			text, err := client.HasVoted(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func newReviewsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reviews",
		Short: "Show the bot's reviews",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBotScoped(cmd, flags, (*voidbots.Client).GetReviews)
		},
	}
}

func newAnalyticsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show the bot's analytics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBotScoped(cmd, flags, (*voidbots.Client).GetAnalytics)
		},
	}
}

type lookupFunc func(*voidbots.Client, context.Context, string) (json.RawMessage, error)

func newLookupCmd(flags *globalFlags, name, short string, lookup lookupFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(flags)
			if err != nil {
				return err
			}
			raw, err := lookup(client, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func printBotScoped(cmd *cobra.Command, flags *globalFlags, get func(*voidbots.Client, context.Context) (json.RawMessage, error)) error {
	client, err := clientFromFlags(flags)
	if err != nil {
		return err
	}
	raw, err := get(client, cmd.Context())
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), raw)
}

func clientFromFlags(flags *globalFlags) (*voidbots.Client, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	return newClient(cfg)
}

func writeJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
