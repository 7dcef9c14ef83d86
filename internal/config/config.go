package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config carries everything the bot process needs, loaded from the environment.
type Config struct {
	BotToken string

	// YouTube OAuth app credentials.
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Telegram user ids allowed to drive the bot.
	AdminIDs []int64

	RedisAddr string

	// DataDir holds tokens/, states/ and tmp/ subdirectories.
	DataDir string

	// Callback / health listener.
	Host string
	Port int

	MaxFileSize int64
	AllowedExts []string

	// Upload engine knobs.
	Concurrency  int
	ChunkSize    int64
	MaxRetries   int
	ChunkTimeout time.Duration
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func mustInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func parseAdminIDs(s string) []int64 {
	var ids []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Load reads the configuration from the environment with defaults matching a
// local development setup. Call Validate before using the result.
func Load() Config {
	exts := []string{".mp4", ".avi", ".mov", ".mkv", ".flv", ".webm"}
	if s := os.Getenv("ALLOWED_EXTENSIONS"); s != "" {
		exts = nil
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				if !strings.HasPrefix(p, ".") {
					p = "." + p
				}
				exts = append(exts, strings.ToLower(p))
			}
		}
	}
	return Config{
		BotToken:     os.Getenv("BOT_TOKEN"),
		ClientID:     os.Getenv("YOUTUBE_CLIENT_ID"),
		ClientSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
		RedirectURI:  os.Getenv("YOUTUBE_REDIRECT_URI"),
		AdminIDs:     parseAdminIDs(os.Getenv("ADMIN_IDS")),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		DataDir:      getenv("DATA_DIR", "./data"),
		Host:         getenv("HOST", "0.0.0.0"),
		Port:         mustInt("PORT", 8080),
		MaxFileSize:  mustInt64("MAX_FILE_SIZE", 2*1024*1024*1024),
		AllowedExts:  exts,
		Concurrency:  mustInt("CONCURRENCY", 2),
		ChunkSize:    mustInt64("UPLOAD_CHUNK_SIZE", 1024*1024),
		MaxRetries:   mustInt("UPLOAD_MAX_RETRIES", 3),
		ChunkTimeout: time.Duration(mustInt("UPLOAD_CHUNK_TIMEOUT_SEC", 120)) * time.Second,
	}
}

// Validate reports every missing required variable at once.
func (c Config) Validate() error {
	var missing []string
	if c.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if c.ClientID == "" {
		missing = append(missing, "YOUTUBE_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "YOUTUBE_CLIENT_SECRET")
	}
	if c.RedirectURI == "" {
		missing = append(missing, "YOUTUBE_REDIRECT_URI")
	}
	if len(c.AdminIDs) == 0 {
		missing = append(missing, "ADMIN_IDS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsAdmin reports whether the given Telegram user may use the bot.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AllowedExt reports whether name has a recognized video extension.
func (c Config) AllowedExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range c.AllowedExts {
		if e == ext {
			return true
		}
	}
	return false
}

func (c Config) TokensDir() string { return filepath.Join(c.DataDir, "tokens") }
func (c Config) StatesDir() string { return filepath.Join(c.DataDir, "states") }
func (c Config) TempDir() string   { return filepath.Join(c.DataDir, "tmp") }
