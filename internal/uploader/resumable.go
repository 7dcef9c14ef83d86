package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"
)

const (
	// DefaultUploadURL is the resumable insert endpoint of the videos API.
	DefaultUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos"

	DefaultChunkSize  = 1 << 20
	DefaultMaxRetries = 3
)

// resumableClient drives one resumable upload session: an init request
// carrying the metadata body, then sequential chunk PUTs until the provider
// answers with the created video. Chunks are never sent in parallel, so the
// committed offset only moves forward.
type resumableClient struct {
	httpc        *http.Client
	uploadURL    string
	chunkSize    int64
	maxRetries   int
	chunkTimeout time.Duration
}

// progressFunc receives the committed fraction of the file, 0..1.
type progressFunc func(fraction float64)

// upload runs the session to completion and returns the provider-assigned
// video id. The retry budget is cumulative across the whole job, not
// per-chunk.
func (c *resumableClient) upload(ctx context.Context, path string, video *youtube.Video, onProgress progressFunc) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}
	size := fi.Size()
	if size == 0 {
		return "", fmt.Errorf("source file %s is empty", path)
	}

	session, err := c.initSession(ctx, video, path, size)
	if err != nil {
		return "", err
	}

	var (
		offset  int64
		retries int
	)
	for {
		n := c.chunkSize
		if size-offset < n {
			n = size - offset
		}
		res, err := c.putChunk(ctx, session, f, offset, n, size)
		if err != nil {
			if !res.transient {
				return "", err
			}
			retries++
			if retries > c.maxRetries {
				return "", &TransferError{Attempts: retries, Err: err}
			}
			continue // same chunk
		}
		if res.videoID != "" {
			if onProgress != nil {
				onProgress(1)
			}
			return res.videoID, nil
		}
		if res.committed >= 0 {
			offset = res.committed
			if onProgress != nil {
				onProgress(float64(offset) / float64(size))
			}
		} else {
			// 308 without a Range header: still in progress, nothing to
			// report; assume the chunk landed and move on.
			offset += n
		}
	}
}

type chunkResult struct {
	videoID   string
	committed int64 // next offset per the server's Range header, -1 if absent
	transient bool  // only meaningful when an error is returned
}

func (c *resumableClient) initSession(ctx context.Context, video *youtube.Video, path string, size int64) (string, error) {
	body, err := json.Marshal(video)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	u := c.uploadURL + "?uploadType=resumable&part=snippet,status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", contentTypeFor(path))
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("init upload session: %w", err)
	}
	defer resp.Body.Close()
	if err := googleapi.CheckResponse(resp); err != nil {
		return "", fmt.Errorf("init upload session: %w", err)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", fmt.Errorf("init upload session: no session URL in response")
	}
	return loc, nil
}

func (c *resumableClient) putChunk(ctx context.Context, session string, f *os.File, offset, n, total int64) (chunkResult, error) {
	if c.chunkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.chunkTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, io.NewSectionReader(f, offset, n))
	if err != nil {
		return chunkResult{}, err
	}
	req.ContentLength = n
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+n-1, total))

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Network failures and per-chunk timeouts are retryable.
		return chunkResult{transient: true}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == 308: // Resume Incomplete
		return chunkResult{committed: parseCommitted(resp.Header.Get("Range"))}, nil
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var v youtube.Video
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return chunkResult{}, fmt.Errorf("decode insert response: %w", err)
		}
		if v.Id == "" {
			return chunkResult{}, fmt.Errorf("insert response carries no video id")
		}
		return chunkResult{videoID: v.Id}, nil
	case resp.StatusCode >= 500 ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusRequestTimeout:
		return chunkResult{transient: true}, googleapi.CheckResponse(resp)
	default:
		return chunkResult{}, googleapi.CheckResponse(resp)
	}
}

// parseCommitted turns a "Range: bytes=0-N" header into the next offset to
// send from, or -1 when the header is absent or unreadable.
func parseCommitted(h string) int64 {
	h = strings.TrimPrefix(h, "bytes=")
	i := strings.LastIndexByte(h, '-')
	if i < 0 {
		return -1
	}
	last, err := strconv.ParseInt(h[i+1:], 10, 64)
	if err != nil {
		return -1
	}
	return last + 1
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(ct, "video/") {
		return ct
	}
	return "video/*"
}
