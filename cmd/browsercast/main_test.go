package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/browsercast/pkg/browser"
	"github.com/odvcencio/browsercast/pkg/config"
	bcerrors "github.com/odvcencio/browsercast/pkg/errors"
)

func TestExitCodeForError(t *testing.T) {
	assert.Equal(t, 0, exitCodeForError(nil))
	assert.Equal(t, exitFailure, exitCodeForError(errors.New("boom")))
	assert.Equal(t, exitConfig, exitCodeForError(configError(errors.New("bad"), "load config")))
	assert.Equal(t, exitConfig, exitCodeForError(bcerrors.New(bcerrors.ErrCodeConfigParse, "yaml")))
	assert.Equal(t, exitBrowser, exitCodeForError(fmt.Errorf("serve: %w",
		bcerrors.Wrap(errors.New("exec: chromium: not found"), bcerrors.ErrCodeBrowserLaunch, "start browser"))))
	assert.Equal(t, exitFailure, exitCodeForError(bcerrors.New(bcerrors.ErrCodeInternal, "x")))
	assert.Nil(t, configError(nil, "unused"))

	wrapped := configError(os.ErrNotExist, "load config")
	assert.ErrorIs(t, wrapped, os.ErrNotExist)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "browsercast "+version)
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browsercast.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  quality: 500\n"), 0o644))

	rootCmd.SetArgs([]string{"serve", "--config", path})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath = ""
	})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCodeForError(err))
}

func TestServerConfigMapping(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Bind = "0.0.0.0:9000"
	cfg.Server.AllowedOrigins = []string{"https://ui.test"}
	cfg.Server.ShutdownTimeout = 3 * time.Second
	cfg.RateLimit.SessionCreatePerSecond = 0
	cfg.Stream.Quality = 60

	sc := serverConfig(cfg)
	assert.Equal(t, "0.0.0.0:9000", sc.BindAddress)
	assert.Equal(t, []string{"https://ui.test"}, sc.AllowedOrigins)
	assert.Equal(t, 3*time.Second, sc.ShutdownTimeout)
	assert.Zero(t, sc.SessionCreateRate)
	assert.Equal(t, 60, sc.Stream.Quality)
	assert.Equal(t, 1080, sc.Stream.MaxWidth)
	assert.Equal(t, browser.FrameFormatJPEG, sc.Stream.Format)
	assert.Equal(t, version, sc.Version)
}

func TestComponentConfigMapping(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Browser.ExtraFlags = []string{"--mute-audio"}
	cfg.Session.PageStyle = "html { filter: none; }"
	cfg.Stream.Repaint = false

	cc := chromiumConfig(cfg.Browser)
	assert.Equal(t, []string{"--mute-audio"}, cc.ExtraFlags)
	assert.Equal(t, 10*time.Second, cc.OperationTimeout)

	sup := supervisorConfig(cfg.Browser)
	assert.Equal(t, browser.DefaultBackoff(), sup.Backoff)
	assert.Equal(t, 2, sup.MaxPingFailures)

	oc := openerConfig(cfg.Session)
	assert.Equal(t, browser.DefaultViewport(), oc.Page.Viewport)
	assert.Equal(t, "en-US,en;q=0.9", oc.Page.AcceptLanguage)
	assert.Equal(t, "html { filter: none; }", oc.Style)

	assert.False(t, streamConfig(cfg.Stream).Repaint)
	assert.Equal(t, 5*time.Second, streamConfig(cfg.Stream).AckTimeout)
}

func TestTraceOutput(t *testing.T) {
	w, closeFn, err := traceOutput("")
	require.NoError(t, err)
	assert.Same(t, os.Stdout, w)
	closeFn()

	path := filepath.Join(t.TempDir(), "spans.json")
	w, closeFn, err = traceOutput(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("{}\n"))
	require.NoError(t, err)
	closeFn()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}
