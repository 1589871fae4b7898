package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s, err := Load(newFlags(t))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", s.APIURL)
	require.Equal(t, "ws://localhost:8000/ws", s.WSURL)
	require.Equal(t, 3*time.Second, s.TypingExpiry)
	require.Equal(t, "localhost:6379", s.Bus.RedisAddr)
	require.False(t, s.Bus.RedisEnabled)
	require.Equal(t, "info", s.Log.Level)
}

func TestEnvAndFlagPrecedence(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HELPDESK_API_URL", "https://desk.example.com/")
	t.Setenv("HELPDESK_REDIS_ENABLED", "true")
	s, err := Load(newFlags(t, "--typing-idle=1s"))
	require.NoError(t, err)
	require.Equal(t, "https://desk.example.com", s.APIURL)
	require.Equal(t, "wss://desk.example.com/ws", s.WSURL)
	require.True(t, s.Bus.RedisEnabled)
	require.Equal(t, time.Second, s.TypingIdle)

	s, err = Load(newFlags(t, "--api-url=http://flag:9000"))
	require.NoError(t, err)
	require.Equal(t, "http://flag:9000", s.APIURL)
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "helpdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api-url: http://file:1234\nprofile: work\nbanner-ttl: 5s\n"), 0o600))

	s, err := Load(newFlags(t, "--config", path))
	require.NoError(t, err)
	require.Equal(t, "http://file:1234", s.APIURL)
	require.Equal(t, "work", s.Profile)
	require.Equal(t, 5*time.Second, s.BannerTTL)
}

func TestDeriveWSURL(t *testing.T) {
	_, err := DeriveWSURL("ftp://x")
	require.Error(t, err)
	ws, err := DeriveWSURL("http://h:1/api")
	require.NoError(t, err)
	require.Equal(t, "ws://h:1/ws", ws)
}
