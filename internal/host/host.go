// Package host recognizes the bot-runtime clients the stats reporter can read
// identifiers and counts from.
package host

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Client is the capability set a bound bot runtime must expose.
type Client interface {
	// OnReady registers fn to run once, when the runtime is connected.
	OnReady(fn func())
	// BotID returns the bot's user identifier, or "" before readiness.
	BotID() string
	// Counts returns the server total and the shard count.
	Counts() (servers, shards int)
}

// ShardGroup is a set of discordgo sessions belonging to one sharded bot.
type ShardGroup []*discordgo.Session

// Bind matches v against the supported runtime variants.
func Bind(v any) (Client, bool) {
	switch c := v.(type) {
	case nil:
		return nil, false
	case *discordgo.Session:
		if c == nil {
			return nil, false
		}
		return &discordSession{session: c}, true
	case ShardGroup:
		return bindShards(c)
	case []*discordgo.Session:
		return bindShards(c)
	case Client:
		return c, true
	default:
		return nil, false
	}
}

// bindShards rejects a group with no live sessions, which could never
// become ready.
func bindShards(sessions []*discordgo.Session) (Client, bool) {
	shards := newDiscordShards(sessions)
	if len(shards.sessions) == 0 {
		return nil, false
	}
	return shards, true
}

// IsSupported reports whether v is one of the recognized runtime clients.
func IsSupported(v any) bool {
	_, ok := Bind(v)
	return ok
}

type discordSession struct {
	session *discordgo.Session
}

func (d *discordSession) OnReady(fn func()) {
	d.session.AddHandlerOnce(func(_ *discordgo.Session, _ *discordgo.Ready) {
		fn()
	})
}

func (d *discordSession) BotID() string {
	return sessionBotID(d.session)
}

func (d *discordSession) Counts() (int, int) {
	shards := d.session.ShardCount
	if shards < 1 {
		shards = 1
	}
	return sessionGuilds(d.session), shards
}

type discordShards struct {
	sessions []*discordgo.Session

	once    sync.Once
	mu      sync.Mutex
	pending int
}

func newDiscordShards(sessions []*discordgo.Session) *discordShards {
	live := make([]*discordgo.Session, 0, len(sessions))
	for _, s := range sessions {
		if s != nil {
			live = append(live, s)
		}
	}
	return &discordShards{sessions: live}
}

// OnReady fires after every shard in the group has seen its Ready event.
func (d *discordShards) OnReady(fn func()) {
	d.mu.Lock()
	d.pending = len(d.sessions)
	d.mu.Unlock()

	for _, s := range d.sessions {
		s.AddHandlerOnce(func(_ *discordgo.Session, _ *discordgo.Ready) {
			d.mu.Lock()
			d.pending--
			done := d.pending <= 0
			d.mu.Unlock()
			if done {
				d.once.Do(fn)
			}
		})
	}
}

func (d *discordShards) BotID() string {
	for _, s := range d.sessions {
		if id := sessionBotID(s); id != "" {
			return id
		}
	}
	return ""
}

func (d *discordShards) Counts() (int, int) {
	servers := 0
	shards := 0
	for _, s := range d.sessions {
		servers += sessionGuilds(s)
		if s.ShardCount > shards {
			shards = s.ShardCount
		}
	}
	if shards < len(d.sessions) {
		shards = len(d.sessions)
	}
	return servers, shards
}

func sessionBotID(s *discordgo.Session) string {
	if s == nil || s.State == nil {
		return ""
	}
	s.State.RLock()
	defer s.State.RUnlock()
	if s.State.User == nil {
		return ""
	}
	return s.State.User.ID
}

func sessionGuilds(s *discordgo.Session) int {
	if s == nil || s.State == nil {
		return 0
	}
	s.State.RLock()
	defer s.State.RUnlock()
	return len(s.State.Guilds)
}
