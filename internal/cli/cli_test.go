// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tierchat/internal/config"
	"github.com/jeranaias/tierchat/internal/ollama"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeBackend is an Ollama-compatible test server.
type fakeBackend struct {
	*httptest.Server
	generates atomic.Int32
}

func newBackend(t *testing.T, status int, reply string) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Write([]byte("Ollama is running"))
			return
		}
		b.generates.Add(1)
		var req ollama.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		fmt.Fprintf(w, `{"model":%q,"response":%q,"done":true,"eval_count":40,"eval_duration":2000000000}`, req.Model, reply)
	}))
	t.Cleanup(b.Close)
	return b
}

// downHost returns the address of a server that is no longer listening.
func downHost(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

// writeConfig points every tier at the given hosts and returns the config path.
func writeConfig(t *testing.T, fast, smart, remote string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TIERCHAT_HOME", dir)
	for _, key := range []string{
		"TIERCHAT_FAST_HOST", "TIERCHAT_SMART_HOST", "TIERCHAT_REMOTE_HOST",
		"TIERCHAT_FAST_MODEL", "TIERCHAT_SMART_MODEL", "TIERCHAT_REMOTE_MODEL",
		"TIERCHAT_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Default()
	cfg.Tiers.Fast.Host = fast
	cfg.Tiers.Smart.Host = smart
	cfg.Tiers.Remote.Host = remote
	cfg.Tiers.Fast.TimeoutSecs = 5
	cfg.Tiers.Smart.TimeoutSecs = 5
	cfg.Tiers.Remote.TimeoutSecs = 5
	cfg.Health.ProbeIntervalSecs = 1
	cfg.Health.ProbeTimeoutMs = 200
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	cfg.Log.Path = filepath.Join(dir, "tierchat.log")
	cfg.Log.Level = "warn"

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, config.SaveTOML(cfg, path))
	return path
}

type cliResult struct {
	stdout string
	stderr string
	code   int
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	code := run(cmd, args, &stderr)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_DefaultGoesToFastTier(t *testing.T) {
	fast := newBackend(t, http.StatusOK, "pong")
	remote := newBackend(t, http.StatusOK, "should not be called")
	path := writeConfig(t, fast.URL, fast.URL, remote.URL)

	res := runCLI(t, "", "--config", path, "ask", "tell", "me", "a", "joke")

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "⚡ Fast (local)")
	assert.Contains(t, res.stdout, "pong")
	assert.Equal(t, int32(1), fast.generates.Load())
	assert.Zero(t, remote.generates.Load())
}

func TestAsk_DeepReasoningFallsBack(t *testing.T) {
	smart := newBackend(t, http.StatusOK, "local answer")
	remote := newBackend(t, http.StatusInternalServerError, "")
	path := writeConfig(t, smart.URL, smart.URL, remote.URL)

	res := runCLI(t, "", "--config", path, "ask", "فكر بعمق في هذه المشكلة")

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "⚠️ 🛰️ Remote (primary) failed")
	assert.Contains(t, res.stdout, "🧠 Smart (local backup)")
	assert.Contains(t, res.stdout, "local answer")
	assert.Equal(t, int32(1), remote.generates.Load())
}

func TestAsk_AllFailedExitsWithOne(t *testing.T) {
	broken := newBackend(t, http.StatusInternalServerError, "")
	path := writeConfig(t, broken.URL, broken.URL, downHost(t))

	res := runCLI(t, "", "--config", path, "ask", "analyze", "this")

	assert.Equal(t, ExitGeneralError, res.code)
	assert.Contains(t, res.stdout, "❌ 🛰️ Remote (primary) failed")
	assert.Contains(t, res.stdout, "❌ 🧠 Smart (local backup) failed")
	assert.NotContains(t, res.stderr, "exit status", "ExitError must not be printed")
}

func TestAsk_MissingRemoteHostFallsBack(t *testing.T) {
	smart := newBackend(t, http.StatusOK, "local answer")
	path := writeConfig(t, smart.URL, smart.URL, "")

	res := runCLI(t, "", "--config", path, "ask", "فكر بعمق في هذه المشكلة")

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "⚠️ 🛰️ Remote (primary) failed: no host configured")
	assert.Contains(t, res.stdout, "🧠 Smart (local backup)")
	assert.Contains(t, res.stdout, "local answer")
	assert.Equal(t, int32(1), smart.generates.Load())

	res = runCLI(t, "", "--config", path, "ask", "ما الساعة؟")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "⏰")
}

func TestAsk_InstantNeedsNoBackend(t *testing.T) {
	down := downHost(t)
	path := writeConfig(t, down, down, down)

	res := runCLI(t, "", "--config", path, "ask", "كم الساعة الآن")

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "⏰")
	assert.Contains(t, res.stdout, "📅")
}

func TestAsk_JSON(t *testing.T) {
	fast := newBackend(t, http.StatusOK, "hi there")
	path := writeConfig(t, fast.URL, fast.URL, fast.URL)

	res := runCLI(t, "", "--config", path, "--json", "ask", "hello")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var decoded struct {
		Success bool       `json:"success"`
		Data    answerJSON `json:"data"`
		Error   *string    `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &decoded))
	assert.True(t, decoded.Success)
	assert.Nil(t, decoded.Error)
	assert.Equal(t, "greeting", decoded.Data.Intent)
	assert.Equal(t, "fast", decoded.Data.Source)
	assert.NotEmpty(t, decoded.Data.RequestID)
	require.Len(t, decoded.Data.Attempts, 1)
	assert.True(t, decoded.Data.Attempts[0].OK)
	assert.InDelta(t, 20.0, decoded.Data.Attempts[0].TokensPerSec, 0.01)
}

func TestAsk_EmptyPromptIsUsageError(t *testing.T) {
	path := writeConfig(t, "127.0.0.1", "127.0.0.1", "127.0.0.1")
	res := runCLI(t, "", "--config", path, "ask", "   ")
	assert.Equal(t, ExitUsageError, res.code)
}

func TestAsk_InvalidConfigFile(t *testing.T) {
	path := writeConfig(t, "127.0.0.1", "127.0.0.1", "127.0.0.1")
	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	cfg.Log.Format = "xml"
	require.NoError(t, config.SaveTOML(cfg, path))

	res := runCLI(t, "", "--config", path, "ask", "hello")
	assert.Equal(t, ExitConfigError, res.code)
	assert.Contains(t, res.stderr, "log.format")
}

// =============================================================================
// CLASSIFY / PROBE
// =============================================================================

func TestClassify_NoNetwork(t *testing.T) {
	backend := newBackend(t, http.StatusOK, "unused")
	path := writeConfig(t, backend.URL, backend.URL, backend.URL)

	res := runCLI(t, "", "--config", path, "classify", "ضع خطة للمشروع")

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "deep_reasoning")
	assert.Contains(t, res.stdout, "🛰️ Remote (primary)")
	assert.Contains(t, res.stdout, "🧠 Smart (local backup)")
	assert.Zero(t, backend.generates.Load())
}

func TestClassify_JSON(t *testing.T) {
	path := writeConfig(t, "127.0.0.1", "127.0.0.1", "10.0.0.5")
	res := runCLI(t, "", "--config", path, "--json", "classify", "what time is it")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var decoded struct {
		Data classifyJSON `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &decoded))
	assert.Equal(t, "instant", decoded.Data.Intent)
	assert.Empty(t, decoded.Data.Attempts)
}

func TestProbe_Table(t *testing.T) {
	up := newBackend(t, http.StatusOK, "")
	path := writeConfig(t, up.URL, up.URL, downHost(t))

	res := runCLI(t, "", "--config", path, "probe")

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "online")
	assert.Contains(t, res.stdout, "offline")
	assert.Zero(t, up.generates.Load(), "probes must not generate")
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_SetGetPath(t *testing.T) {
	path := writeConfig(t, "127.0.0.1", "127.0.0.1", "10.0.0.5")

	res := runCLI(t, "", "--config", path, "config", "path")
	require.Equal(t, ExitSuccess, res.code)
	assert.Equal(t, path, strings.TrimSpace(res.stdout))

	res = runCLI(t, "", "--config", path, "config", "set", "tiers.remote.host", "10.0.0.9")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	res = runCLI(t, "", "--config", path, "config", "get", "tiers.remote.host")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "10.0.0.9", strings.TrimSpace(res.stdout))

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", cfg.Tiers.Remote.Host)
}

func TestConfig_SetInvalidValueKeepsFile(t *testing.T) {
	path := writeConfig(t, "127.0.0.1", "127.0.0.1", "10.0.0.5")

	res := runCLI(t, "", "--config", path, "config", "set", "tiers.fast.timeout_secs", "0")
	assert.Equal(t, ExitConfigError, res.code)

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Tiers.Fast.TimeoutSecs)
}

func TestConfig_GetUnknownKey(t *testing.T) {
	path := writeConfig(t, "127.0.0.1", "127.0.0.1", "10.0.0.5")
	res := runCLI(t, "", "--config", path, "config", "get", "tiers.nope.host")
	assert.Equal(t, ExitUsageError, res.code)
}

// =============================================================================
// JOURNAL
// =============================================================================

func TestJournal_RecordsAskAttempts(t *testing.T) {
	smart := newBackend(t, http.StatusOK, "ok")
	remote := newBackend(t, http.StatusBadGateway, "")
	path := writeConfig(t, smart.URL, smart.URL, remote.URL)

	res := runCLI(t, "", "--config", path, "ask", "think", "step by step")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	res = runCLI(t, "", "--config", path, "--json", "journal", "--limit", "5")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var decoded struct {
		Data struct {
			Attempts []struct {
				AttemptNo int
				OK        bool
				ErrorType string
			} `json:"attempts"`
			Stats map[string]struct {
				Attempts  int
				Successes int
			} `json:"stats"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &decoded))
	require.Len(t, decoded.Data.Attempts, 2)
	assert.True(t, decoded.Data.Attempts[0].OK)
	assert.Equal(t, 2, decoded.Data.Attempts[0].AttemptNo)
	assert.Equal(t, "server_fault", decoded.Data.Attempts[1].ErrorType)
	assert.Equal(t, 1, decoded.Data.Stats["remote"].Attempts)
	assert.Equal(t, 0, decoded.Data.Stats["remote"].Successes)

	res = runCLI(t, "", "--config", path, "journal")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "server_fault")
	assert.Contains(t, res.stdout, "Per-tier stats")
}

func TestJournal_Disabled(t *testing.T) {
	path := writeConfig(t, "127.0.0.1", "127.0.0.1", "10.0.0.5")
	res := runCLI(t, "", "--config", path, "config", "set", "journal.enabled", "false")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	res = runCLI(t, "", "--config", path, "journal")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "disabled")
}

// =============================================================================
// CHAT
// =============================================================================

func TestChat_PipedSession(t *testing.T) {
	fast := newBackend(t, http.StatusOK, "pong")
	path := writeConfig(t, fast.URL, fast.URL, fast.URL)

	input := strings.Join([]string{
		"hello",
		"/get tiers.fast.model",
		"/set tiers.fast.model llama3.2:3b",
		"/bogus",
		"/quit",
		"this line is never read",
	}, "\n") + "\n"

	res := runCLI(t, input, "--config", path, "chat")

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "pong")
	assert.Contains(t, res.stdout, "tiers.fast.model = qwen2.5:1.5b")
	assert.Contains(t, res.stdout, "Saved")
	assert.Contains(t, res.stdout, "unknown command /bogus")
	assert.Contains(t, res.stdout, "Session ended: 1 prompt(s), 0 failed.")
	assert.NotContains(t, res.stdout, "never read")
	assert.Equal(t, int32(1), fast.generates.Load())

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "llama3.2:3b", cfg.Tiers.Fast.Model)
}

func TestChat_EOFDrainsPendingPrompts(t *testing.T) {
	broken := newBackend(t, http.StatusInternalServerError, "")
	path := writeConfig(t, broken.URL, broken.URL, broken.URL)

	res := runCLI(t, "hello\nwhat time is it\n", "--config", path, "chat")

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "❌ ⚡ Fast (local) failed")
	assert.Contains(t, res.stdout, "⏰")
	assert.Contains(t, res.stdout, "2 prompt(s), 1 failed")
}

func TestChat_Export(t *testing.T) {
	fast := newBackend(t, http.StatusOK, "pong")
	path := writeConfig(t, fast.URL, fast.URL, fast.URL)
	out := filepath.Join(t.TempDir(), "session.json")

	res := runCLI(t, "hello there\n/export "+out+"\n/quit\n", "--config", path, "chat")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Exported "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"text": "hello there"`)
	assert.Contains(t, string(data), `"role": "user"`)
}

// =============================================================================
// HELPERS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"exit error", &ExitError{Code: 1}, 1},
		{"usage", &UsageError{Arg: "x", Reason: "bad"}, ExitUsageError},
		{"validation", fmt.Errorf("wrap: %w", config.ValidateErrors{{Field: "f", Message: "m"}}), ExitConfigError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, GetExitCode(tc.err))
		})
	}
}

func TestWrapText(t *testing.T) {
	got := WrapText("one two three four five six", 14)
	for _, line := range strings.Split(got, "\n") {
		assert.LessOrEqual(t, len(line), 12, "line %q too wide", line)
	}
	assert.Equal(t, "short\nkept", WrapText("short\nkept", 40))
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignRight})
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "3")
	assert.Empty(t, renderTable(nil, nil, nil))
}
