package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

type apiCall struct {
	method string
	path   string
	body   string
}

func newAPI(t *testing.T, reply string) (*httptest.Server, func() []apiCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []apiCall
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, apiCall{method: r.Method, path: r.URL.Path, body: string(body)})
		mu.Unlock()
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(ts.Close)
	return ts, func() []apiCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]apiCall{}, calls...)
	}
}

func TestRunMissingConfigValues(t *testing.T) {
	path := writeConfig(t, "stats_interval: 1m\n")
	var buf bytes.Buffer
	code := runWithContext(context.Background(), []string{"--config", path, "stats", "--servers", "1"}, &buf)
	if code == 0 {
		t.Fatalf("expected non-zero exit code")
	}
	if !strings.Contains(buf.String(), "failed to load config") {
		t.Fatalf("unexpected error output: %q", buf.String())
	}
}

func TestStatsRequiresToken(t *testing.T) {
	path := writeConfig(t, "bot_id: \"42\"\n")
	var buf bytes.Buffer
	code := runWithContext(context.Background(), []string{"--config", path, "stats", "--servers", "1"}, &buf)
	if code == 0 {
		t.Fatalf("expected non-zero exit code")
	}
	if !strings.Contains(buf.String(), "token is required") {
		t.Fatalf("unexpected error output: %q", buf.String())
	}
}

func TestStatsCommandPostsCounts(t *testing.T) {
	api, calls := newAPI(t, "Stats updated")
	path := writeConfig(t, fmt.Sprintf("token: \"vb\"\nbot_id: \"42\"\nbase_url: %q\n", api.URL))

	var buf bytes.Buffer
	code := runWithContext(context.Background(), []string{"--config", path, "stats", "--servers", "5", "--shards", "2"}, &buf)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d output=%q", code, buf.String())
	}
	if !strings.Contains(buf.String(), "Stats updated") {
		t.Fatalf("unexpected output %q", buf.String())
	}

	got := calls()
	if len(got) != 1 {
		t.Fatalf("expected one request, got %d", len(got))
	}
	if got[0].method != http.MethodPost || got[0].path != "/bot/stats/42" {
		t.Fatalf("unexpected request %+v", got[0])
	}
	if got[0].body != `{"server_count":5,"shard_count":2}` {
		t.Fatalf("unexpected body %s", got[0].body)
	}
}

func TestStatsRejectsNegativeCount(t *testing.T) {
	api, calls := newAPI(t, "OK")
	path := writeConfig(t, fmt.Sprintf("token: \"vb\"\nbot_id: \"42\"\nbase_url: %q\n", api.URL))

	var buf bytes.Buffer
	code := runWithContext(context.Background(), []string{"--config", path, "stats", "--servers=-1"}, &buf)
	if code == 0 {
		t.Fatalf("expected non-zero exit code")
	}
	if len(calls()) != 0 {
		t.Fatal("expected no requests")
	}
}

func TestLookupCommandsPrintJSON(t *testing.T) {
	api, calls := newAPI(t, `{"id":"555","name":"Eris"}`)
	path := writeConfig(t, fmt.Sprintf("token: \"vb\"\nbot_id: \"42\"\nbase_url: %q\n", api.URL))

	cases := map[string]string{
		"bot":  "/bot/info/555",
		"pack": "/pack/info/555",
		"user": "/user/info/555",
	}
	for name, wantPath := range cases {
		var buf bytes.Buffer
		code := runWithContext(context.Background(), []string{"--config", path, name, "555"}, &buf)
		if code != 0 {
			t.Fatalf("%s: exit code %d output=%q", name, code, buf.String())
		}
		if !strings.Contains(buf.String(), `"name": "Eris"`) {
			t.Fatalf("%s: expected indented JSON, got %q", name, buf.String())
		}
		got := calls()
		if last := got[len(got)-1]; last.path != wantPath || last.method != http.MethodGet {
			t.Fatalf("%s: unexpected request %+v", name, last)
		}
	}

	var buf bytes.Buffer
	if code := runWithContext(context.Background(), []string{"--config", path, "reviews"}, &buf); code != 0 {
		t.Fatalf("reviews: exit code %d output=%q", code, buf.String())
	}
	got := calls()
	if last := got[len(got)-1]; last.path != "/bot/reviews/42" {
		t.Fatalf("reviews: unexpected request %+v", last)
	}
}

func TestVotedCommand(t *testing.T) {
	api, calls := newAPI(t, `{"voted":true}`)
	path := writeConfig(t, fmt.Sprintf("token: \"vb\"\nbot_id: \"42\"\nbase_url: %q\n", api.URL))

	var buf bytes.Buffer
	if code := runWithContext(context.Background(), []string{"--config", path, "voted", "99"}, &buf); code != 0 {
		t.Fatalf("exit code %d output=%q", code, buf.String())
	}
	if strings.TrimSpace(buf.String()) != `{"voted":true}` {
		t.Fatalf("unexpected output %q", buf.String())
	}
	if got := calls(); len(got) != 1 || got[0].path != "/bot/voted/42/99" {
		t.Fatalf("unexpected requests %+v", got)
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	if code := runWithContext(context.Background(), []string{"version"}, &buf); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.HasPrefix(buf.String(), "voidbots ") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestRunRequiresDiscordToken(t *testing.T) {
	path := writeConfig(t, "token: \"vb\"\n")
	var buf bytes.Buffer
	code := runWithContext(context.Background(), []string{"--config", path, "run"}, &buf)
	if code == 0 {
		t.Fatalf("expected non-zero exit code")
	}
	if !strings.Contains(buf.String(), "discord.token") {
		t.Fatalf("unexpected error output: %q", buf.String())
	}
}

func stubConnect(t *testing.T, fn func(*discordgo.Session) error) {
	t.Helper()
	prev := connectSession
	connectSession = fn
	t.Cleanup(func() { connectSession = prev })
}

func TestRunExitsOnCancel(t *testing.T) {
	var mu sync.Mutex
	var shardIDs []int
	stubConnect(t, func(s *discordgo.Session) error {
		mu.Lock()
		shardIDs = append(shardIDs, s.ShardID)
		mu.Unlock()
		return nil
	})
	path := writeConfig(t, "token: \"vb\"\ndiscord:\n  token: \"dt\"\n  shard_count: 2\ngateway:\n  enabled: false\n")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	var buf bytes.Buffer
	code := runWithContext(ctx, []string{"--config", path, "run"}, &buf)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d output=%q", code, buf.String())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(shardIDs) != 2 || shardIDs[0] != 0 || shardIDs[1] != 1 {
		t.Fatalf("expected both shards to connect, got %v", shardIDs)
	}
}

func TestRunReportsConnectFailure(t *testing.T) {
	stubConnect(t, func(*discordgo.Session) error {
		return errors.New("gateway refused")
	})
	path := writeConfig(t, "token: \"vb\"\ndiscord:\n  token: \"dt\"\ngateway:\n  enabled: false\n")

	var buf bytes.Buffer
	code := runWithContext(context.Background(), []string{"--config", path, "run"}, &buf)
	if code == 0 {
		t.Fatalf("expected non-zero exit code")
	}
	if !strings.Contains(buf.String(), "failed to connect to Discord") {
		t.Fatalf("unexpected error output: %q", buf.String())
	}
}

func TestWatchPrintsMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"event","action":"voted"}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	}))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	var buf bytes.Buffer
	code := runWithContext(context.Background(), []string{"watch", "--url", wsURL}, &buf)
	if code != 0 {
		t.Fatalf("exit code %d output=%q", code, buf.String())
	}
	if !strings.Contains(buf.String(), `"action":"voted"`) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
