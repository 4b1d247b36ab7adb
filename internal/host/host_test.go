package host

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

type fakeClient struct{}

func (fakeClient) OnReady(fn func())  {}
func (fakeClient) BotID() string      { return "42" }
func (fakeClient) Counts() (int, int) { return 3, 1 }

func newSession(t *testing.T, userID string, guilds, shardCount int) *discordgo.Session {
	t.Helper()
	s, err := discordgo.New("Bot token")
	if err != nil {
		t.Fatalf("discordgo.New: %v", err)
	}
	if userID != "" {
		s.State.User = &discordgo.User{ID: userID}
	}
	for i := 0; i < guilds; i++ {
		s.State.Guilds = append(s.State.Guilds, &discordgo.Guild{ID: string(rune('a' + i))})
	}
	s.ShardCount = shardCount
	return s
}

func TestBindRecognizesVariants(t *testing.T) {
	session := newSession(t, "100", 2, 1)

	cases := []struct {
		name string
		v    any
		want bool
	}{
		{name: "discord session", v: session, want: true},
		{name: "shard group", v: ShardGroup{session}, want: true},
		{name: "session slice", v: []*discordgo.Session{session}, want: true},
		{name: "custom client", v: fakeClient{}, want: true},
		{name: "nil", v: nil, want: false},
		{name: "typed nil session", v: (*discordgo.Session)(nil), want: false},
		{name: "empty group", v: ShardGroup{}, want: false},
		{name: "group of nil sessions", v: ShardGroup{nil, nil}, want: false},
		{name: "slice of nil sessions", v: []*discordgo.Session{nil}, want: false},
		{name: "group with one live session", v: ShardGroup{nil, session}, want: true},
		{name: "string", v: "client", want: false},
		{name: "map", v: map[string]any{"autoPost": true}, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSupported(tc.v); got != tc.want {
				t.Fatalf("IsSupported(%T)=%v want %v", tc.v, got, tc.want)
			}
		})
	}
}

func TestDiscordSessionCounts(t *testing.T) {
	client, ok := Bind(newSession(t, "100", 3, 0))
	if !ok {
		t.Fatal("expected session to bind")
	}
	if id := client.BotID(); id != "100" {
		t.Fatalf("expected bot id 100, got %q", id)
	}
	servers, shards := client.Counts()
	if servers != 3 || shards != 1 {
		t.Fatalf("expected counts 3/1, got %d/%d", servers, shards)
	}
}

func TestDiscordSessionBotIDBeforeReady(t *testing.T) {
	client, ok := Bind(newSession(t, "", 0, 1))
	if !ok {
		t.Fatal("expected session to bind")
	}
	if id := client.BotID(); id != "" {
		t.Fatalf("expected empty bot id, got %q", id)
	}
}

func TestShardGroupSumsGuilds(t *testing.T) {
	group := ShardGroup{
		newSession(t, "", 2, 3),
		newSession(t, "200", 4, 3),
		newSession(t, "200", 1, 3),
	}
	client, ok := Bind(group)
	if !ok {
		t.Fatal("expected group to bind")
	}
	if id := client.BotID(); id != "200" {
		t.Fatalf("expected bot id 200, got %q", id)
	}
	servers, shards := client.Counts()
	if servers != 7 || shards != 3 {
		t.Fatalf("expected counts 7/3, got %d/%d", servers, shards)
	}
}

func TestCustomClientPassesThrough(t *testing.T) {
	client, ok := Bind(fakeClient{})
	if !ok {
		t.Fatal("expected custom client to bind")
	}
	if client.BotID() != "42" {
		t.Fatalf("unexpected bot id %q", client.BotID())
	}
}
