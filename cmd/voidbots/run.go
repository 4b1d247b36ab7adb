package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"github.com/fractalmind-ai/voidbots/internal/announce"
	"github.com/fractalmind-ai/voidbots/internal/config"
	"github.com/fractalmind-ai/voidbots/internal/gateway"
	"github.com/fractalmind-ai/voidbots/internal/host"
)

// connectSession opens the Discord connection; tests replace it.
var connectSession = func(s *discordgo.Session) error {
	return s.Open()
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord, autopost stats and serve the vote webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord.token is required (set it in the config file or %sDISCORD__TOKEN)", config.EnvPrefix)
	}

	sessions, bound, err := newSessions(cfg.Discord)
	if err != nil {
		return err
	}

	client, err := newClient(cfg, bound)
	if err != nil {
		return err
	}
	if cfg.Discord.VoteChannelID != "" {
		announcer, err := announce.NewDiscordAnnouncer(sessions[0], cfg.Discord.VoteChannelID, cfg.Discord.VoteMessage)
		if err != nil {
			return err
		}
		client.OnVoted(announcer.Handler())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var server *gateway.Server
	var gatewayDone chan error
	if cfg.Gateway.Enabled {
		server, err = gateway.NewServer(cfg.Gateway, client)
		if err != nil {
			return fmt.Errorf("failed to initialize gateway: %w", err)
		}
		gatewayDone = make(chan error, 1)
		go func() {
			err := server.Start(ctx)
			if err != nil {
				cancel()
			}
			gatewayDone <- err
		}()
	}

	var runErr error
	for _, s := range sessions {
		if err := connectSession(s); err != nil {
			runErr = fmt.Errorf("failed to connect to Discord: %w", err)
			cancel()
			break
		}
	}
	if runErr == nil {
		log.Printf("🚀 voidbots running with %d Discord session(s)", len(sessions))
	}

	<-ctx.Done()
	log.Printf("🛑 Shutting down")

	closeSessions(sessions)
	if gatewayDone != nil {
		if err := <-gatewayDone; err != nil && runErr == nil {
			runErr = fmt.Errorf("gateway error: %w", err)
		}
	}
	if err := shutdown(client, server); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// newSessions creates one session per configured shard. A single session is
// bound directly; several are bound as a shard group.
func newSessions(cfg config.DiscordConfig) ([]*discordgo.Session, any, error) {
	count := cfg.ShardCount
	if count < 1 {
		count = 1
	}

	sessions := make([]*discordgo.Session, 0, count)
	for i := 0; i < count; i++ {
		s, err := discordgo.New("Bot " + cfg.Token)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Discord session: %w", err)
		}
		s.Identify.Intents = discordgo.IntentsGuilds
		s.ShardID = i
		s.ShardCount = count
		sessions = append(sessions, s)
	}

	if count == 1 {
		return sessions, sessions[0], nil
	}
	return sessions, host.ShardGroup(sessions), nil
}

func closeSessions(sessions []*discordgo.Session) {
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			log.Printf("Discord session close error: %v", err)
		}
	}
}

type closer interface {
	Close(ctx context.Context) error
}

func shutdown(client closer, server *gateway.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if err := client.Close(ctx); err != nil {
		log.Printf("client shutdown error: %v", err)
		firstErr = err
	}
	if server != nil {
		if err := server.Stop(); err != nil {
			log.Printf("gateway shutdown error: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
