package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fractalmind-ai/voidbots/internal/config"
	"github.com/fractalmind-ai/voidbots/pkg/voidbots"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runWithContext(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func runWithContext(ctx context.Context, args []string, out io.Writer) int {
	root := newRootCmd(out)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}
	return 0
}

type globalFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "voidbots",
		Short: "VoidBots stats poster, vote webhook and API client",
		Long: `voidbots keeps a Discord bot's VoidBots listing up to date. The run
command posts server and shard counts on an interval, receives vote
webhooks and streams events over a local WebSocket gateway. The other
commands call the API once and print the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.verbose {
				log.SetFlags(log.LstdFlags | log.Lshortfile)
			}
		},
	}
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVar(&flags.configPath, "config", "./config.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(
		newRunCmd(flags),
		newStatsCmd(flags),
		newVotedCmd(flags),
		newReviewsCmd(flags),
		newAnalyticsCmd(flags),
		newLookupCmd(flags, "bot", "Show listing information for a bot", (*voidbots.Client).GetBot),
		newLookupCmd(flags, "pack", "Show information about a bot pack", (*voidbots.Client).GetPack),
		newLookupCmd(flags, "user", "Show information about a VoidBots user", (*voidbots.Client).GetUser),
		newWatchCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "voidbots %s (client %s)\n", Version, voidbots.Version)
		},
	}
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newClient builds an API client from cfg. extra is passed to voidbots.New
// after the configured options, typically the Discord session.
func newClient(cfg *config.Config, extra ...any) (*voidbots.Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required (set token in the config file or %sTOKEN)", config.EnvPrefix)
	}

	args := []any{
		clientOptions(cfg),
		voidbots.WithBaseURL(cfg.BaseURL),
		voidbots.WithBotID(cfg.BotID),
		voidbots.WithCache(cfg.CacheTTL),
		voidbots.WithRateLimit(cfg.RateLimit, 1),
	}
	args = append(args, extra...)
	return voidbots.New(cfg.Token, args...)
}

func clientOptions(cfg *config.Config) voidbots.Options {
	var tunnel voidbots.Tunnel
	if cfg.Webhook.PublicURL != "" {
		tunnel = voidbots.StaticTunnel(cfg.Webhook.PublicURL)
	} else {
		tunnel = voidbots.Localtunnel(cfg.Webhook.TunnelHost, cfg.Webhook.Subdomain)
	}

	return voidbots.Options{
		AutoPost:       cfg.Autopost,
		StatsInterval:  cfg.StatsInterval,
		WebhookEnabled: cfg.Webhook.Enabled,
		Webhook: voidbots.WebhookOptions{
			Port:   cfg.Webhook.Port,
			Path:   cfg.Webhook.Path,
			Tunnel: tunnel,
		},
	}
}
