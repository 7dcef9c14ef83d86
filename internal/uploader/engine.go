package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/youtube/v3"

	"github.com/you/tg-ytbridge/internal/jobs"
	"github.com/you/tg-ytbridge/internal/logx"
)

const (
	DefaultCategoryID = "22"
	DefaultPrivacy    = "private"
)

// CredentialSource hands out OAuth tokens per user. Implemented by auth.Store.
type CredentialSource interface {
	Has(userID int64) bool
	Valid(ctx context.Context, userID int64) (*oauth2.Token, error)
}

// Enqueuer submits an accepted job for asynchronous execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, p jobs.UploadVideoPayload) error
}

// Config tunes the chunked transfer. Zero values fall back to defaults.
type Config struct {
	UploadURL    string
	ChunkSize    int64
	MaxRetries   int
	ChunkTimeout time.Duration
}

// Engine accepts upload requests, validates them synchronously, and drives the
// accepted ones to completion on the worker side, recording every observable
// state change in the Tracker.
type Engine struct {
	creds   CredentialSource
	oauth   *oauth2.Config
	tracker *Tracker
	queue   Enqueuer
	cfg     Config
}

func NewEngine(creds CredentialSource, oauthCfg *oauth2.Config, tracker *Tracker, queue Enqueuer, cfg Config) *Engine {
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Engine{creds: creds, oauth: oauthCfg, tracker: tracker, queue: queue, cfg: cfg}
}

// UploadRequest is one upload attempt for one user.
type UploadRequest struct {
	UserID      int64
	ChatID      int64
	FilePath    string
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     string
}

// Start validates the request, records the initial status snapshot, and
// enqueues the job. It returns the job id immediately; the transfer itself
// runs on a worker. Rejections leave no tracker entry and the source file
// untouched.
func (e *Engine) Start(ctx context.Context, req UploadRequest) (string, error) {
	if !e.creds.Has(req.UserID) {
		return "", ErrNotAuthenticated
	}
	if strings.TrimSpace(req.Title) == "" {
		return "", &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	fi, err := os.Stat(req.FilePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, req.FilePath)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrFileNotFound, req.FilePath)
	}

	if req.CategoryID == "" {
		req.CategoryID = DefaultCategoryID
	}
	if req.Privacy == "" {
		req.Privacy = DefaultPrivacy
	}

	jobID := ulid.Make().String()
	base := filepath.Base(req.FilePath)
	e.tracker.Record(req.UserID, Status{Status: StatusUploading, Progress: 0, File: base})

	err = e.queue.Enqueue(ctx, jobs.UploadVideoPayload{
		JobID:       jobID,
		ChatID:      req.ChatID,
		UserID:      req.UserID,
		FilePath:    req.FilePath,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		CategoryID:  req.CategoryID,
		Privacy:     req.Privacy,
	})
	if err != nil {
		e.tracker.Record(req.UserID, errorStatus(base, 0, err))
		return "", fmt.Errorf("enqueue upload: %w", err)
	}
	return jobID, nil
}

// Process executes one upload job to its terminal state. It never propagates
// transfer failures to the enqueuer: the outcome is only observable through
// the Tracker. The source file is removed on every exit path, including a
// recovered panic, so the file's lifetime is tied to the job's.
func (e *Engine) Process(ctx context.Context, p jobs.UploadVideoPayload) (err error) {
	base := filepath.Base(p.FilePath)
	l := logx.FromCtx(logx.WithJob(ctx, p.JobID, p.UserID))
	lastPct := 0

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("upload worker crashed: %v", r)
			e.tracker.Record(p.UserID, errorStatus(base, lastPct, err))
			l.Error().Err(err).Msg("panic in upload worker")
		}
		e.removeSource(p.FilePath, l)
	}()

	tok, err := e.creds.Valid(ctx, p.UserID)
	if err != nil {
		e.tracker.Record(p.UserID, errorStatus(base, lastPct, err))
		return err
	}

	rc := &resumableClient{
		httpc:        e.oauth.Client(ctx, tok),
		uploadURL:    e.cfg.UploadURL,
		chunkSize:    e.cfg.ChunkSize,
		maxRetries:   e.cfg.MaxRetries,
		chunkTimeout: e.cfg.ChunkTimeout,
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       p.Title,
			Description: p.Description,
			Tags:        p.Tags,
			CategoryId:  p.CategoryID,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: p.Privacy},
	}

	l.Info().Str("file", base).Int64("chunk_size", e.cfg.ChunkSize).Msg("upload starting")
	id, err := rc.upload(ctx, p.FilePath, video, func(frac float64) {
		pct := int(frac * 100)
		if pct > 100 {
			pct = 100
		}
		if pct < lastPct {
			// committed offsets only move forward; keep reported progress
			// monotonic regardless
			return
		}
		lastPct = pct
		e.tracker.Record(p.UserID, Status{Status: StatusUploading, Progress: pct, File: base})
	})
	if err != nil {
		l.Error().Err(err).Msg("upload failed")
		e.tracker.Record(p.UserID, errorStatus(base, lastPct, err))
		return err
	}

	l.Info().Str("video_id", id).Msg("upload completed")
	e.tracker.Record(p.UserID, Status{Status: StatusCompleted, Progress: 100, File: base, VideoID: id})
	return nil
}

func errorStatus(file string, progress int, err error) Status {
	return Status{Status: "error: " + err.Error(), Progress: progress, File: file}
}

// removeSource is best-effort: a leftover temp file is logged, never surfaced.
func (e *Engine) removeSource(path string, l zerolog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.Warn().Err(err).Str("file", path).Msg("temp file cleanup failed")
	}
}
