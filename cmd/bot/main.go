package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-ytbridge/internal/auth"
	"github.com/you/tg-ytbridge/internal/callback"
	"github.com/you/tg-ytbridge/internal/config"
	"github.com/you/tg-ytbridge/internal/fetch"
	"github.com/you/tg-ytbridge/internal/jobs"
	"github.com/you/tg-ytbridge/internal/logx"
	"github.com/you/tg-ytbridge/internal/uploader"
)

// Conversational states, one per user, persisted in Redis.
const (
	stateAwaitingAuthCode = "awaiting_auth_code"
	stateAwaitingUpload   = "awaiting_upload"
	stateAwaitingDetails  = "awaiting_details"
)

var rctx = context.Background()

type server struct {
	cfg     config.Config
	bot     *tgbotapi.BotAPI
	rdb     *redis.Client
	store   *auth.Store
	flow    *auth.Flow
	engine  *uploader.Engine
	tracker *uploader.Tracker
	fetch   *fetch.Fetcher
}

func main() {
	_ = godotenv.Load()
	c := config.Load()

	logx.Setup(logx.FromEnv("bot"))
	log.Info().Msg("bot starting")

	if err := c.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}
	if err := os.MkdirAll(c.TempDir(), 0o755); err != nil {
		log.Fatal().Err(err).Msg("create temp dir")
	}

	bot, err := tgbotapi.NewBotAPI(c.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth failed")
	}
	bot.Debug = false
	log.Info().Str("username", bot.Self.UserName).Msg("bot authorized")

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})

	oauthCfg := auth.NewOAuthConfig(c.ClientID, c.ClientSecret, c.RedirectURI)
	store, err := auth.NewStore(oauthCfg, c.TokensDir(), c.StatesDir())
	if err != nil {
		log.Fatal().Err(err).Msg("credential store init")
	}

	asClient := asynq.NewClient(asynq.RedisClientOpt{Addr: c.RedisAddr})
	tracker := uploader.NewTracker()
	eng := uploader.NewEngine(store, oauthCfg, tracker, jobs.NewEnqueuer(asClient), uploader.Config{
		ChunkSize:    c.ChunkSize,
		MaxRetries:   c.MaxRetries,
		ChunkTimeout: c.ChunkTimeout,
	})

	s := &server{
		cfg:     c,
		bot:     bot,
		rdb:     rdb,
		store:   store,
		flow:    auth.NewFlow(store, oauthCfg),
		engine:  eng,
		tracker: tracker,
		fetch:   fetch.New(c.MaxFileSize),
	}

	// Embedded worker: the status tracker is process-local, so the upload
	// consumer has to live in the same process as the gateway that polls it.
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: c.RedisAddr}, asynq.Config{
		Concurrency: c.Concurrency,
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TaskUploadVideo, s.handleUploadTask)
	if err := srv.Start(mux); err != nil {
		log.Fatal().Err(err).Msg("upload worker failed to start")
	}

	// OAuth redirect + health listener.
	cb := callback.NewServer(fmt.Sprintf("%s:%d", c.Host, c.Port))
	go func() {
		if err := cb.Start(); err != nil {
			log.Fatal().Err(err).Msg("callback listener stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		bot.StopReceivingUpdates()
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	for upd := range bot.GetUpdatesChan(u) {
		if upd.Message != nil {
			s.onMessage(upd.Message)
		}
	}

	// Updates channel closed: drain in-flight uploads, then the listener.
	log.Info().Msg("shutting down")
	srv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cb.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("callback listener shutdown")
	}
}

// --- Upload worker ---

func (s *server) handleUploadTask(ctx context.Context, t *asynq.Task) error {
	var p jobs.UploadVideoPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	err := s.engine.Process(ctx, p)

	// Push notification on top of the polling contract.
	st := s.tracker.Get(p.UserID)
	switch {
	case err == nil && st.Status == uploader.StatusCompleted:
		s.reply(p.ChatID, fmt.Sprintf("✅ Upload complete!\n📹 Video: https://youtube.com/watch?v=%s", st.VideoID))
	case err != nil:
		s.reply(p.ChatID, "❌ Upload failed. Use /status for details.")
		// Terminal status is already recorded; a redelivery would restart a
		// job the user has seen fail.
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}

// --- Handlers ---

func (s *server) onMessage(m *tgbotapi.Message) {
	userID := m.From.ID
	log.Info().
		Int64("chat_id", m.Chat.ID).
		Int64("user_id", userID).
		Msg("message received")

	if !s.cfg.IsAdmin(userID) {
		if m.IsCommand() {
			s.reply(m.Chat.ID, "❌ You are not authorized to use this bot.")
		}
		return
	}

	if m.IsCommand() {
		switch m.Command() {
		case "start":
			s.cmdStart(m)
		case "auth":
			s.cmdAuth(m)
		case "status":
			s.cmdStatus(m)
		case "upload":
			s.cmdUpload(m)
		case "cancel":
			s.cmdCancel(m)
		default:
			s.reply(m.Chat.ID, "Unknown command. Try /start.")
		}
		return
	}

	switch s.getState(userID) {
	case stateAwaitingAuthCode:
		if m.Text != "" {
			s.handleAuthCode(m)
		}
	case stateAwaitingUpload:
		if v, ok := extractVideo(m); ok {
			s.handleVideoFile(m, v)
			return
		}
		if m.Text != "" {
			s.handleVideoLink(m)
		}
	case stateAwaitingDetails:
		if m.Text != "" {
			s.handleDetails(m)
		}
	}
}

func (s *server) cmdStart(m *tgbotapi.Message) {
	s.reply(m.Chat.ID, "🎬 YouTube Upload Bot\n\n"+
		"I upload videos to YouTube directly from Telegram.\n\n"+
		"📋 Commands:\n"+
		"/auth – authenticate with YouTube\n"+
		"/upload – upload a video\n"+
		"/status – check upload progress\n"+
		"/cancel – abandon the current conversation\n\n"+
		"📁 Sources: Telegram files, direct video links, and anything yt-dlp can resolve.")
}

func (s *server) cmdAuth(m *tgbotapi.Message) {
	userID := m.From.ID
	if s.store.Has(userID) {
		s.reply(m.Chat.ID, "✅ You are already authenticated!")
		return
	}
	authURL, err := s.flow.AuthorizationURL(userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("authorization URL failed")
		s.reply(m.Chat.ID, "Internal error. Try /auth again.")
		return
	}

	msg := tgbotapi.NewMessage(m.Chat.ID,
		"🔐 Authentication required\n\n"+
			"1. Open the link below and authorize\n"+
			"2. You'll get a code after authorizing\n"+
			"3. Send that code back to me")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🔗 Authorize with YouTube", authURL),
		),
	)
	_, _ = s.bot.Send(msg)
	s.setState(userID, stateAwaitingAuthCode)
}

func (s *server) handleAuthCode(m *tgbotapi.Message) {
	userID := m.From.ID
	err := s.flow.ExchangeCode(rctx, userID, m.Text)
	// Either way the handshake is over; a failure reverts to unauthenticated.
	s.resetState(userID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("code exchange failed")
		var ae *auth.AuthError
		if errors.As(err, &ae) {
			s.reply(m.Chat.ID, "❌ Authentication failed: "+ae.Reason+". Please try /auth again.")
		} else {
			s.reply(m.Chat.ID, "❌ Authentication failed. Please try /auth again.")
		}
		return
	}
	log.Info().Int64("user_id", userID).Msg("user authenticated")
	s.reply(m.Chat.ID, "✅ Authentication successful! You can now upload videos.")
}

func (s *server) cmdStatus(m *tgbotapi.Message) {
	st := s.tracker.Get(m.From.ID)
	switch st.Status {
	case uploader.StatusNoUploads:
		s.reply(m.Chat.ID, "📊 No active uploads.")
	case uploader.StatusUploading:
		bar := strings.Repeat("▓", st.Progress/10) + strings.Repeat("░", 10-st.Progress/10)
		s.reply(m.Chat.ID, fmt.Sprintf("📤 Uploading: %s\n📊 Progress: %d%%\n%s", st.File, st.Progress, bar))
	case uploader.StatusCompleted:
		s.reply(m.Chat.ID, fmt.Sprintf("✅ Upload complete!\n📹 Video: https://youtube.com/watch?v=%s", st.VideoID))
	default:
		s.reply(m.Chat.ID, "❌ "+st.Status)
	}
}

func (s *server) cmdUpload(m *tgbotapi.Message) {
	userID := m.From.ID
	if !s.store.Has(userID) {
		s.reply(m.Chat.ID, "❌ Please authenticate first using /auth")
		return
	}
	if s.tracker.Get(userID).Status == uploader.StatusUploading {
		s.reply(m.Chat.ID, "⏳ An upload is already in progress. Use /status to follow it.")
		return
	}
	s.reply(m.Chat.ID, "📤 Send me a video file or a direct link to a video.\n"+
		"Supported sources:\n"+
		"• Telegram video files\n"+
		"• Direct video URLs\n"+
		"• Links resolvable by yt-dlp")
	s.setState(userID, stateAwaitingUpload)
}

func (s *server) cmdCancel(m *tgbotapi.Message) {
	userID := m.From.ID
	if p, err := s.getPendingFile(userID); err == nil {
		_ = os.Remove(p.Path)
	}
	s.resetState(userID)
	s.reply(m.Chat.ID, "Session canceled. Use /upload to start again.")
}

// --- Media intake ---

type videoRef struct {
	FileID string
	Name   string
	Size   int64
}

func extractVideo(m *tgbotapi.Message) (videoRef, bool) {
	if m.Video != nil {
		return videoRef{FileID: m.Video.FileID, Size: int64(m.Video.FileSize)}, true
	}
	if m.Document != nil && strings.HasPrefix(strings.ToLower(m.Document.MimeType), "video/") {
		return videoRef{FileID: m.Document.FileID, Name: m.Document.FileName, Size: int64(m.Document.FileSize)}, true
	}
	return videoRef{}, false
}

func (s *server) handleVideoFile(m *tgbotapi.Message, v videoRef) {
	userID := m.From.ID
	if v.Size > s.cfg.MaxFileSize {
		s.reply(m.Chat.ID, fmt.Sprintf("❌ File too large. Max size: %dGB", s.cfg.MaxFileSize/(1024*1024*1024)))
		return
	}
	ext := ".mp4"
	if v.Name != "" && s.cfg.AllowedExt(v.Name) {
		ext = strings.ToLower(filepath.Ext(v.Name))
	}
	dest := s.tempPath(userID, ext)

	s.reply(m.Chat.ID, "⬇️ Downloading file...")
	if err := s.fetch.FromTelegram(rctx, s.bot, v.FileID, dest); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("telegram download failed")
		s.reply(m.Chat.ID, "❌ Download failed: "+err.Error())
		return
	}
	s.promptDetails(m.Chat.ID, userID, dest, v.Name)
}

func (s *server) handleVideoLink(m *tgbotapi.Message) {
	userID := m.From.ID
	rawURL := strings.TrimSpace(m.Text)

	ext := ".mp4"
	if u := path.Ext(rawURL); u != "" && s.cfg.AllowedExt(rawURL) {
		ext = strings.ToLower(u)
	}
	dest := s.tempPath(userID, ext)

	s.reply(m.Chat.ID, "⬇️ Downloading from link...")
	if err := s.fetch.FromURLWithFallback(rctx, rawURL, dest); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("link download failed")
		s.reply(m.Chat.ID, "❌ Download failed: "+err.Error())
		return
	}
	s.promptDetails(m.Chat.ID, userID, dest, path.Base(rawURL))
}

func (s *server) promptDetails(chatID, userID int64, filePath, name string) {
	if err := s.setPendingFile(userID, pendingFile{Path: filePath, Name: name}); err != nil {
		s.reply(chatID, "Internal error (pending). Try again.")
		return
	}
	s.reply(chatID, "📝 Please provide video details\n\n"+
		"Send title and description in this format:\n"+
		"Title: Your Video Title\n"+
		"Description: Your video description\n\n"+
		"Add optional tags like:\n"+
		"Tags: tag1, tag2, tag3")
	s.setState(userID, stateAwaitingDetails)
}

func (s *server) handleDetails(m *tgbotapi.Message) {
	userID := m.From.ID
	title, description, tags := parseDetails(m.Text)
	if title == "" {
		s.reply(m.Chat.ID, "❌ Title is required. Please send again with Title:")
		return
	}

	p, err := s.getPendingFile(userID)
	if err != nil {
		s.reply(m.Chat.ID, "❌ File not found. Please start over with /upload.")
		s.resetState(userID)
		return
	}

	jobID, err := s.engine.Start(rctx, uploader.UploadRequest{
		UserID:      userID,
		ChatID:      m.Chat.ID,
		FilePath:    p.Path,
		Title:       title,
		Description: description,
		Tags:        tags,
	})
	if err != nil {
		var ve *uploader.ValidationError
		switch {
		case errors.Is(err, uploader.ErrNotAuthenticated):
			s.reply(m.Chat.ID, "❌ Please authenticate first using /auth")
		case errors.As(err, &ve):
			s.reply(m.Chat.ID, "❌ "+ve.Error())
		case errors.Is(err, uploader.ErrFileNotFound):
			s.reply(m.Chat.ID, "❌ File not found. Please start over with /upload.")
			s.resetState(userID)
		default:
			log.Error().Err(err).Int64("user_id", userID).Msg("upload start failed")
			s.reply(m.Chat.ID, "❌ Upload failed: "+err.Error())
			s.resetState(userID)
		}
		return
	}

	log.Info().Str("job", jobID).Int64("user_id", userID).Str("title", title).Msg("upload queued")
	s.reply(m.Chat.ID, fmt.Sprintf("📤 Upload started for %q.\nUse /status to check progress.", title))
	s.resetState(userID)
}

func (s *server) tempPath(userID int64, ext string) string {
	return filepath.Join(s.cfg.TempDir(), fmt.Sprintf("%d_%s%s", userID, ulid.Make(), ext))
}

// --- State persistence (Redis) ---

type pendingFile struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

func keyState(user int64) string   { return fmt.Sprintf("state:%d", user) }
func keyPending(user int64) string { return fmt.Sprintf("pending:%d", user) }

func (s *server) setState(user int64, st string) {
	_ = s.rdb.Set(rctx, keyState(user), st, 24*time.Hour).Err()
}

func (s *server) getState(user int64) string {
	st, _ := s.rdb.Get(rctx, keyState(user)).Result()
	return st
}

func (s *server) resetState(user int64) {
	_ = s.rdb.Del(rctx, keyState(user), keyPending(user)).Err()
}

func (s *server) setPendingFile(user int64, p pendingFile) error {
	b, _ := json.Marshal(p)
	return s.rdb.Set(rctx, keyPending(user), string(b), 24*time.Hour).Err()
}

func (s *server) getPendingFile(user int64) (pendingFile, error) {
	raw, err := s.rdb.Get(rctx, keyPending(user)).Result()
	if err != nil {
		return pendingFile{}, err
	}
	var p pendingFile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return pendingFile{}, err
	}
	if _, err := os.Stat(p.Path); err != nil {
		return pendingFile{}, err
	}
	return p, nil
}

func (s *server) reply(chatID int64, text string) {
	_, _ = s.bot.Send(tgbotapi.NewMessage(chatID, text))
}
