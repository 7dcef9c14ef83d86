// Package fetch pulls upload sources into the local temp directory: Telegram
// files via the Bot API, direct links via plain HTTP, and everything else via
// a yt-dlp subprocess.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-ytbridge/internal/logx"
)

// Fetcher downloads source videos. MaxBytes caps every download; partially
// fetched files are removed, never resumed.
type Fetcher struct {
	httpc     *http.Client
	maxBytes  int64
	ytdlpPath string
}

func New(maxBytes int64) *Fetcher {
	return &Fetcher{
		httpc:     &http.Client{Timeout: 30 * time.Minute},
		maxBytes:  maxBytes,
		ytdlpPath: "yt-dlp",
	}
}

// FromTelegram resolves the Bot API file URL for fileID and downloads it to
// dest.
func (f *Fetcher) FromTelegram(ctx context.Context, bot *tgbotapi.BotAPI, fileID, dest string) error {
	link, err := bot.GetFileDirectURL(fileID)
	if err != nil {
		return fmt.Errorf("resolve telegram file: %w", err)
	}
	return f.download(ctx, link, dest)
}

// FromURL downloads a direct link to dest, enforcing the byte cap.
func (f *Fetcher) FromURL(ctx context.Context, rawURL, dest string) error {
	if err := checkURL(rawURL); err != nil {
		return err
	}
	return f.download(ctx, rawURL, dest)
}

// FromURLWithFallback tries a direct download first and falls back to yt-dlp
// for links that need an extractor.
func (f *Fetcher) FromURLWithFallback(ctx context.Context, rawURL, dest string) error {
	if err := checkURL(rawURL); err != nil {
		return err
	}
	if err := f.download(ctx, rawURL, dest); err != nil {
		log.Debug().Err(err).Str("url", rawURL).Msg("direct download failed, trying yt-dlp")
		return f.viaYtdlp(ctx, rawURL, dest)
	}
	return nil
}

func checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid URL: %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}
	return nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: unexpected status %s", resp.Status)
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return fmt.Errorf("file too large: %d bytes (max %d)", resp.ContentLength, f.maxBytes)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	n, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && f.maxBytes > 0 && n > f.maxBytes {
		err = fmt.Errorf("file too large: exceeds %d bytes", f.maxBytes)
	}
	if err != nil {
		_ = os.Remove(dest)
		return err
	}
	return nil
}

// viaYtdlp shells out to yt-dlp for extractor-resolvable links, piping its
// output into the log.
func (f *Fetcher) viaYtdlp(ctx context.Context, rawURL, dest string) error {
	cmd := exec.CommandContext(ctx, f.ytdlpPath,
		"-f", "best[ext=mp4]/best",
		"--no-warnings",
		"-o", dest,
		rawURL,
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start yt-dlp: %w", err)
	}
	go logx.NewLineWriter(map[string]string{"cmd": "yt-dlp"}, zerolog.DebugLevel).Pipe(stdout)
	go logx.NewLineWriter(map[string]string{"cmd": "yt-dlp"}, zerolog.ErrorLevel).Pipe(stderr)
	if err := cmd.Wait(); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("yt-dlp: %w", err)
	}
	if _, err := os.Stat(dest); err != nil {
		return fmt.Errorf("yt-dlp produced no output file")
	}
	return nil
}
