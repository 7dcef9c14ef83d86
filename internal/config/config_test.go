package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "tg-token")
	t.Setenv("YOUTUBE_CLIENT_ID", "cid")
	t.Setenv("YOUTUBE_CLIENT_SECRET", "secret")
	t.Setenv("YOUTUBE_REDIRECT_URI", "http://localhost:8080/callback")
	t.Setenv("ADMIN_IDS", "100, 200,300")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	c := Load()

	require.NoError(t, c.Validate())
	require.Equal(t, []int64{100, 200, 300}, c.AdminIDs)
	require.Equal(t, "localhost:6379", c.RedisAddr)
	require.Equal(t, 8080, c.Port)
	require.Equal(t, int64(2*1024*1024*1024), c.MaxFileSize)
	require.Equal(t, int64(1024*1024), c.ChunkSize)
	require.Equal(t, 3, c.MaxRetries)
	require.Equal(t, 2, c.Concurrency)
	require.Equal(t, 120*time.Second, c.ChunkTimeout)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("PORT", "9000")
	t.Setenv("UPLOAD_CHUNK_SIZE", "524288")
	t.Setenv("UPLOAD_MAX_RETRIES", "5")
	t.Setenv("ALLOWED_EXTENSIONS", "mp4, .MOV")

	c := Load()
	require.Equal(t, "redis:6380", c.RedisAddr)
	require.Equal(t, 9000, c.Port)
	require.Equal(t, int64(524288), c.ChunkSize)
	require.Equal(t, 5, c.MaxRetries)
	require.Equal(t, []string{".mp4", ".mov"}, c.AllowedExts)
}

func TestValidateReportsAllMissing(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("YOUTUBE_CLIENT_ID", "")
	t.Setenv("YOUTUBE_CLIENT_SECRET", "")
	t.Setenv("YOUTUBE_REDIRECT_URI", "")
	t.Setenv("ADMIN_IDS", "")

	err := Load().Validate()
	require.Error(t, err)
	for _, name := range []string{"BOT_TOKEN", "YOUTUBE_CLIENT_ID", "YOUTUBE_CLIENT_SECRET", "YOUTUBE_REDIRECT_URI", "ADMIN_IDS"} {
		require.ErrorContains(t, err, name)
	}
}

func TestIsAdmin(t *testing.T) {
	c := Config{AdminIDs: []int64{100, 200}}
	require.True(t, c.IsAdmin(100))
	require.True(t, c.IsAdmin(200))
	require.False(t, c.IsAdmin(300))
}

func TestAllowedExt(t *testing.T) {
	setRequired(t)
	c := Load()
	require.True(t, c.AllowedExt("clip.mp4"))
	require.True(t, c.AllowedExt("CLIP.MKV"))
	require.False(t, c.AllowedExt("notes.txt"))
	require.False(t, c.AllowedExt("noext"))
}

func TestDataSubdirs(t *testing.T) {
	c := Config{DataDir: "/var/lib/bridge"}
	require.Equal(t, "/var/lib/bridge/tokens", c.TokensDir())
	require.Equal(t, "/var/lib/bridge/states", c.StatesDir())
	require.Equal(t, "/var/lib/bridge/tmp", c.TempDir())
}
