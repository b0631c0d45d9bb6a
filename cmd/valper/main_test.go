package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testing-zone/Valper-AI/audio"
	"github.com/testing-zone/Valper-AI/config"
	"github.com/testing-zone/Valper-AI/metrics"
	"github.com/testing-zone/Valper-AI/remote"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newBackend(t *testing.T, healthy bool, version string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"message": "Valper AI API", "version": version})
	})
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		status := remote.StatusHealthy
		if !healthy {
			status = remote.StatusUnhealthy
		}
		writeJSON(w, map[string]any{"status": status, "services": map[string]bool{"stt": true, "tts": healthy, "llm": true}})
	})
	mux.HandleFunc("/api/v1/services/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"stt": map[string]any{"model": "whisper-base", "ready": true}})
	})
	mux.HandleFunc("/api/v1/conversation", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"user_text": "hi", "assistant_text": "Hello there"})
	})
	mux.HandleFunc("/api/v1/tts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(audio.WrapPCMAsWAV(make([]byte, 320), audio.DefaultCaptureFormat))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckHealth_Text(t *testing.T) {
	srv := newBackend(t, true, "1.2.0")
	var out bytes.Buffer

	err := checkHealth(context.Background(), &out, remote.NewClient(srv.URL), "", false)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "status:  healthy")
	assert.Contains(t, text, "llm:     ready")
	assert.Contains(t, text, "version: 1.2.0 (compatible)")
	assert.Contains(t, text, "service stt: model=whisper-base ready=true")
	assert.NotContains(t, text, "error")
}

func TestCheckHealth_Incompatible(t *testing.T) {
	srv := newBackend(t, true, "2.0.0")
	var out bytes.Buffer

	require.NoError(t, checkHealth(context.Background(), &out, remote.NewClient(srv.URL), "", false))
	assert.Contains(t, out.String(), "version: 2.0.0 (incompatible)")
}

func TestCheckHealth_UnhealthyJSON(t *testing.T) {
	srv := newBackend(t, false, "1.0.0")
	var out bytes.Buffer

	err := checkHealth(context.Background(), &out, remote.NewClient(srv.URL), "", true)
	assert.ErrorIs(t, err, errUnhealthy)

	var report healthReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, remote.StatusUnhealthy, report.Health.Status)
	assert.False(t, report.Health.TTSReady)
	require.NotNil(t, report.Compatible)
	assert.True(t, *report.Compatible)
}

func TestCheckHealth_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	var out bytes.Buffer

	err := checkHealth(context.Background(), &out, remote.NewClient(url), "", false)
	assert.ErrorIs(t, err, errUnhealthy)
	assert.Contains(t, out.String(), "status:  unhealthy")
	assert.Contains(t, out.String(), "error (health)")
}

func TestConverseOnce(t *testing.T) {
	srv := newBackend(t, true, "1.0.0")
	client := remote.NewClient(srv.URL)

	reply, err := converseOnce(context.Background(), client, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", reply.AssistantText)

	var out bytes.Buffer
	printReply(&out, reply)
	assert.Equal(t, "You:    hi\nValper: Hello there\n", out.String())

	_, err = converseOnce(context.Background(), client, "", nil)
	assert.Error(t, err)
}

func TestReadArtifact(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.wav")
	require.NoError(t, os.WriteFile(good, audio.WrapPCMAsWAV(make([]byte, 64), audio.DefaultCaptureFormat), 0o600))
	bad := filepath.Join(dir, "bad.wav")
	require.NoError(t, os.WriteFile(bad, []byte("not a wav"), 0o600))

	a, err := readArtifact(good)
	require.NoError(t, err)
	assert.Equal(t, audio.ContentTypeWAV, a.ContentType())

	_, err = readArtifact(bad)
	assert.Error(t, err)
	_, err = readArtifact(filepath.Join(dir, "missing.wav"))
	assert.Error(t, err)
}

func TestSynthesizeToFile(t *testing.T) {
	srv := newBackend(t, true, "1.0.0")
	path := filepath.Join(t.TempDir(), "out.wav")
	var out bytes.Buffer

	require.NoError(t, synthesizeToFile(context.Background(), &out, remote.NewClient(srv.URL), "", "af_heart", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, f, err := audio.ParseWAV(data)
	require.NoError(t, err)
	assert.Equal(t, audio.DefaultCaptureFormat, f)
	assert.Contains(t, out.String(), "to "+path)
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valper.yaml")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"config", "init", path})
	require.NoError(t, rootCmd.Execute())
	assert.FileExists(t, path)

	rootCmd.SetArgs([]string{"config", "init", path})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
}

func TestGetVersionInfo(t *testing.T) {
	old := version
	t.Cleanup(func() { version, gitCommit = old, "" })

	version, gitCommit = "1.4.0", "abc123"
	assert.Equal(t, "1.4.0", GetVersion())
	assert.Equal(t, "valper version 1.4.0\ncommit: abc123", GetVersionInfo())
}

func TestWriteSummary(t *testing.T) {
	cfg := &config.Config{}
	a := &app{cfg: cfg, exporter: metrics.NewExporter("")}
	metrics.RecordTurn("user")

	var out bytes.Buffer
	require.NoError(t, a.writeSummary(&out))
	assert.Empty(t, out.String())

	cfg.Metrics.Summary = true
	require.NoError(t, a.writeSummary(&out))
	assert.Contains(t, out.String(), "valper_turns_total")

	out.Reset()
	require.NoError(t, (&app{cfg: cfg}).writeSummary(&out))
	assert.Empty(t, out.String())
}
