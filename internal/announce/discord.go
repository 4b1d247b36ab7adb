// Package announce posts vote notifications to a Discord channel.
package announce

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/fractalmind-ai/voidbots/pkg/voidbots"
)

const (
	// DefaultTemplate is used when no vote message is configured.
	DefaultTemplate = "🎉 Thanks {user} for voting!"

	truncateSuffix         = "\n…(truncated)"
	maxDiscordMessageChars = 1800
)

// DiscordAnnouncer sends one message per vote to a fixed channel.
type DiscordAnnouncer struct {
	channelID string
	template  string

	session       *discordgo.Session
	sendMessageFn func(ctx context.Context, channelID, text string) error

	telemetryMu  sync.RWMutex
	lastActivity time.Time
	lastError    time.Time
}

func NewDiscordAnnouncer(session *discordgo.Session, channelID, template string) (*DiscordAnnouncer, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, errors.New("discord channel ID is required")
	}
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}

	a := &DiscordAnnouncer{
		channelID: channelID,
		template:  template,
		session:   session,
	}
	a.sendMessageFn = a.sendText
	return a, nil
}

// Handler adapts the announcer to Client.OnVoted. Failures are logged.
func (a *DiscordAnnouncer) Handler() func(voidbots.Vote) {
	return func(vote voidbots.Vote) {
		if err := a.Announce(context.Background(), vote); err != nil {
			log.Printf("vote announce error: %v", err)
		}
	}
}

// Announce posts the formatted vote message.
func (a *DiscordAnnouncer) Announce(ctx context.Context, vote voidbots.Vote) error {
	text := truncateMessage(FormatVote(a.template, vote), maxDiscordMessageChars)
	if err := a.sendMessageFn(ctx, a.channelID, text); err != nil {
		a.markError()
		return err
	}
	a.markActivity()
	return nil
}

// FormatVote fills {user} (a mention), {user_id} and {bot} in template.
func FormatVote(template string, vote voidbots.Vote) string {
	user := vote.User()
	mention := "someone"
	if user != "" {
		mention = "<@" + user + ">"
	}
	r := strings.NewReplacer(
		"{user}", mention,
		"{user_id}", user,
		"{bot}", vote.Bot(),
	)
	return r.Replace(template)
}

// LastActivity reports the last successful announcement.
func (a *DiscordAnnouncer) LastActivity() time.Time {
	a.telemetryMu.RLock()
	defer a.telemetryMu.RUnlock()
	return a.lastActivity
}

// LastError reports the last failed announcement.
func (a *DiscordAnnouncer) LastError() time.Time {
	a.telemetryMu.RLock()
	defer a.telemetryMu.RUnlock()
	return a.lastError
}

func (a *DiscordAnnouncer) markActivity() {
	a.telemetryMu.Lock()
	a.lastActivity = time.Now().UTC()
	a.telemetryMu.Unlock()
}

func (a *DiscordAnnouncer) markError() {
	a.telemetryMu.Lock()
	a.lastError = time.Now().UTC()
	a.telemetryMu.Unlock()
}

func (a *DiscordAnnouncer) sendText(ctx context.Context, channelID, text string) error {
	if a.session == nil {
		return errors.New("discord session not initialized")
	}
	_, err := a.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}

func truncateMessage(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return strings.TrimSpace(text[:cut]) + truncateSuffix
}
