package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/podscope/pkg/repository"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Test Cast</title>
  <link>%[1]s</link>
  <description>A show about tests</description>
  <item>
    <title>Episode 1</title>
    <guid>ep-1</guid>
    <link>%[1]s/ep1.txt</link>
    <pubDate>Mon, 06 Jan 2025 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Episode 2</title>
    <guid>ep-2</guid>
    <link>%[1]s/ep2.txt</link>
    <pubDate>Tue, 07 Jan 2025 10:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

const draftJSON = `{"overview":"Testing pipelines end to end.","topics":["testing"],"takeaways":["Fakes keep tests fast"],"quotes":[]}`

// upstream serves the feed, the episode texts and an OpenAI-compatible chat endpoint
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	words := make([]string, 80)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	text := strings.Join(words, " ") + "."

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("GET /feed.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprintf(w, feedXML, srv.URL)
	})
	mux.HandleFunc("GET /{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(r.PathValue("name") + " " + text))
	})
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		resp := map[string]any{
			"id": "chatcmpl-1", "object": "chat.completion", "model": "test-model-001",
			"choices": []map[string]any{{"index": 0, "finish_reason": "stop",
				"message": map[string]any{"role": "assistant", "content": draftJSON}}},
			"usage": map[string]any{"prompt_tokens": 1200, "completion_tokens": 80, "total_tokens": 1280},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, llmURL string) string {
	t.Helper()
	cfg := fmt.Sprintf(`data_dir: %s
transcription:
  backend: api
llm:
  endpoint: %s/v1
  api_key: test-key
  model: test-model
pipeline:
  retry_delay: 10ms
  retry_max_delay: 50ms
`, filepath.Join(dir, "data"), llmURL)
	path := filepath.Join(dir, "podscope.yml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

// runner returns a function executing a command with the test config and returning its output
func runner(t *testing.T, cfgPath string) func(args ...string) (string, error) {
	t.Helper()
	return func(args ...string) (string, error) {
		var buf bytes.Buffer
		err := execute(context.Background(), append([]string{"-c", cfgPath, "--no-color"}, args...), &buf)
		return buf.String(), err
	}
}

func TestExecute_EndToEnd(t *testing.T) {
	ts := upstream(t)
	dir := t.TempDir()
	run := runner(t, writeConfig(t, dir, ts.URL))

	out, err := run("add", ts.URL+"/feed.xml")
	require.NoError(t, err)
	assert.Equal(t, "subscribed to Test Cast (id 1), 2 items\n", out)

	out, err = run("add", ts.URL+"/feed.xml")
	require.NoError(t, err)
	assert.Equal(t, "already subscribed to Test Cast (id 1)\n", out)

	out, err = run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID  TITLE")
	assert.Contains(t, out, "Test Cast")

	out, err = run("sync")
	require.NoError(t, err)
	assert.Contains(t, out, "acquired: 2, derived: 2, summarized: 2, failed: 0")

	out, err = run("show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "[done] Episode 1")
	assert.Regexp(t, `summary #[12], `, out, "first sync stores one summary per item")
	assert.Contains(t, out, "test-model-001")
	assert.Contains(t, out, "1,200+80 tokens")
	assert.Contains(t, out, "Testing pipelines end to end.")

	firstID := regexp.MustCompile(`summary #(\d+)`).FindStringSubmatch(out)[1]

	out, err = run("show", "--text", "1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ep1.txt word0 word1"), out)

	out, err = run("sync", "--item", "1", "--resummarize")
	require.NoError(t, err)
	assert.Contains(t, out, "summarized: 1,")

	out, err = run("show", "--history", "1")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "summary #"))
	assert.Less(t, strings.Index(out, "summary #3"), strings.Index(out, "summary #"+firstID), "newest first")

	out, err = run("list", "1")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "[done]"))

	out, err = run("sync")
	require.NoError(t, err)
	assert.Contains(t, out, "new: 0")
	assert.Contains(t, out, "summarized: 0")

	out, err = run("remove", "--purge", "Test")
	require.NoError(t, err)
	assert.Contains(t, out, "unsubscribed from Test Cast, purged items")
	_, err = os.Stat(filepath.Join(dir, "data", "text", "1"))
	assert.True(t, os.IsNotExist(err), "text of the feed removed")

	out, err = run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "no feeds")

	_, err = run("show", "1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestExecute_RemoveKeepsItems(t *testing.T) {
	ts := upstream(t)
	dir := t.TempDir()
	run := runner(t, writeConfig(t, dir, ts.URL))

	_, err := run("add", ts.URL+"/feed.xml")
	require.NoError(t, err)
	out, err := run("remove", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "items kept")

	out, err = run("show", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "[new] Episode 2")
	assert.Contains(t, out, "item 2, feed 0")
	assert.Contains(t, out, "no summary yet")

	out, err = run("sync")
	require.NoError(t, err, "no feeds is not an error")
	assert.Contains(t, out, "no feeds")

	_, err = run("remove", "1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestExecute_AddSkipsInvalidEntries(t *testing.T) {
	const doc = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Odd Cast</title>
  <item><title>Trailer</title><guid>trailer</guid></item>
  <item><title>Episode 1</title><guid>ep-1</guid><link>https://example.com/ep1.txt</link></item>
  <item><title>Episode 1 again</title><guid>ep-1</guid><link>https://example.com/ep1-copy.txt</link></item>
</channel></rss>`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(doc))
	}))
	defer ts.Close()
	run := runner(t, writeConfig(t, t.TempDir(), "http://127.0.0.1:1"))

	out, err := run("add", ts.URL+"/odd.xml")
	require.NoError(t, err)
	assert.Equal(t, "subscribed to Odd Cast (id 1), 1 items\n", out)

	out, err = run("list", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "[new]"))
	assert.NotContains(t, out, "Trailer")
	assert.NotContains(t, out, "again")
}

func TestExecute_DownloadOnly(t *testing.T) {
	ts := upstream(t)
	dir := t.TempDir()
	run := runner(t, writeConfig(t, dir, ts.URL))

	_, err := run("add", ts.URL+"/feed.xml")
	require.NoError(t, err)
	out, err := run("sync", "--download-only", "Test Cast")
	require.NoError(t, err)
	assert.Contains(t, out, "acquired: 2, derived: 0, summarized: 0")

	out, err = run("list", "--status", "acquired", "1")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "[acq]"))

	_, err = run("list", "--status", "done", "1")
	require.Error(t, err)

	_, err = run("sync", "--cpu", "150")
	require.Error(t, err)
}

func TestExecute_Config(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "http://127.0.0.1:1")
	run := runner(t, cfgPath)

	out, err := run("config")
	require.NoError(t, err)
	assert.Contains(t, out, "model: test-model")
	assert.Contains(t, out, "****")
	assert.NotContains(t, out, "test-key")

	out, err = run("config", "llm.model", "other-model")
	require.NoError(t, err)
	assert.Contains(t, out, "llm.model = other-model saved to")

	out, err = run("config")
	require.NoError(t, err)
	assert.Contains(t, out, "model: other-model")

	_, err = run("config", "llm.nope", "x")
	require.Error(t, err)
	_, err = run("config", "llm.model")
	require.Error(t, err)
}

func TestExecute_Serve(t *testing.T) {
	ts := upstream(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, ts.URL)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- execute(ctx, []string{"-c", cfgPath, "serve", "--listen", addr, "--schedule"}, &bytes.Buffer{})
	}()

	var status map[string]any
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/v1/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&status) == nil
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, "enabled", status["schedule"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestExecute_Errors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"--version"}, &buf))
	assert.Contains(t, buf.String(), "Version: unknown")

	err := execute(context.Background(), []string{}, &bytes.Buffer{})
	require.EqualError(t, err, "no command given")

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("llm: [broken"), 0o600))
	err = execute(context.Background(), []string{"-c", bad, "list"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
