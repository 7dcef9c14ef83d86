package uploader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/you/tg-ytbridge/internal/jobs"
)

type fakeCreds struct {
	has      bool
	validErr error
	panics   bool
}

func (f *fakeCreds) Has(int64) bool { return f.has }

func (f *fakeCreds) Valid(context.Context, int64) (*oauth2.Token, error) {
	if f.panics {
		panic("credential store corrupted")
	}
	if f.validErr != nil {
		return nil, f.validErr
	}
	return &oauth2.Token{
		AccessToken: "at-1",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}, nil
}

// captureQueue records the enqueued payload so the test can run Process
// synchronously.
type captureQueue struct {
	payload *jobs.UploadVideoPayload
	err     error
}

func (q *captureQueue) Enqueue(_ context.Context, p jobs.UploadVideoPayload) error {
	if q.err != nil {
		return q.err
	}
	cp := p
	q.payload = &cp
	return nil
}

func newTestEngine(t *testing.T, us *uploadServer, creds CredentialSource) (*Engine, *Tracker, *captureQueue) {
	t.Helper()
	oauthCfg := &oauth2.Config{
		ClientID: "cid",
		Endpoint: oauth2.Endpoint{TokenURL: "http://127.0.0.1:1/token"},
	}
	tracker := NewTracker()
	q := &captureQueue{}
	eng := NewEngine(creds, oauthCfg, tracker, q, Config{
		UploadURL:    us.srv.URL,
		ChunkSize:    1024,
		MaxRetries:   3,
		ChunkTimeout: 5 * time.Second,
	})
	return eng, tracker, q
}

func TestStartRejectsWithoutCredential(t *testing.T) {
	us := newUploadServer(t)
	eng, tracker, q := newTestEngine(t, us, &fakeCreds{has: false})
	path := writeTempVideo(t, 2048)

	_, err := eng.Start(context.Background(), UploadRequest{UserID: 7, FilePath: path, Title: "clip"})
	require.ErrorIs(t, err, ErrNotAuthenticated)

	// Rejection leaves no trace and the source intact.
	require.Equal(t, StatusNoUploads, tracker.Get(7).Status)
	require.Nil(t, q.payload)
	require.FileExists(t, path)
}

func TestStartRejectsEmptyTitle(t *testing.T) {
	us := newUploadServer(t)
	eng, tracker, _ := newTestEngine(t, us, &fakeCreds{has: true})
	path := writeTempVideo(t, 2048)

	_, err := eng.Start(context.Background(), UploadRequest{UserID: 7, FilePath: path, Title: "   "})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "title", ve.Field)
	require.Equal(t, StatusNoUploads, tracker.Get(7).Status)
	require.FileExists(t, path)
}

func TestStartRejectsMissingFile(t *testing.T) {
	us := newUploadServer(t)
	eng, tracker, _ := newTestEngine(t, us, &fakeCreds{has: true})

	_, err := eng.Start(context.Background(), UploadRequest{UserID: 7, FilePath: "/nonexistent/clip.mp4", Title: "clip"})
	require.ErrorIs(t, err, ErrFileNotFound)
	require.Equal(t, StatusNoUploads, tracker.Get(7).Status)
}

func TestStartRecordsInitialStatusAndDefaults(t *testing.T) {
	us := newUploadServer(t)
	eng, tracker, q := newTestEngine(t, us, &fakeCreds{has: true})
	path := writeTempVideo(t, 2048)

	jobID, err := eng.Start(context.Background(), UploadRequest{UserID: 7, ChatID: 9, FilePath: path, Title: "clip"})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	st := tracker.Get(7)
	require.Equal(t, StatusUploading, st.Status)
	require.Equal(t, 0, st.Progress)
	require.Equal(t, "clip.mp4", st.File)
	require.False(t, st.Terminal())

	require.NotNil(t, q.payload)
	require.Equal(t, jobID, q.payload.JobID)
	require.Equal(t, DefaultCategoryID, q.payload.CategoryID)
	require.Equal(t, DefaultPrivacy, q.payload.Privacy)
}

func TestStartEnqueueFailure(t *testing.T) {
	us := newUploadServer(t)
	eng, tracker, q := newTestEngine(t, us, &fakeCreds{has: true})
	q.err = errors.New("queue down")
	path := writeTempVideo(t, 2048)

	_, err := eng.Start(context.Background(), UploadRequest{UserID: 7, FilePath: path, Title: "clip"})
	require.ErrorContains(t, err, "queue down")
	require.True(t, tracker.Get(7).Terminal())
}

func TestProcessCompletesUpload(t *testing.T) {
	us := newUploadServer(t)
	eng, tracker, q := newTestEngine(t, us, &fakeCreds{has: true})
	path := writeTempVideo(t, 3*1024+200)

	_, err := eng.Start(context.Background(), UploadRequest{UserID: 7, FilePath: path, Title: "clip"})
	require.NoError(t, err)
	require.NoError(t, eng.Process(context.Background(), *q.payload))

	st := tracker.Get(7)
	require.Equal(t, StatusCompleted, st.Status)
	require.Equal(t, 100, st.Progress)
	require.Equal(t, "vid-123", st.VideoID)
	require.True(t, st.Terminal())

	// Source file lifetime is tied to the job.
	require.NoFileExists(t, path)
}

func TestProcessRetryBudgetExhausted(t *testing.T) {
	us := newUploadServer(t)
	us.failAll = true
	eng, tracker, q := newTestEngine(t, us, &fakeCreds{has: true})
	path := writeTempVideo(t, 2048)

	_, err := eng.Start(context.Background(), UploadRequest{UserID: 7, FilePath: path, Title: "clip"})
	require.NoError(t, err)

	err = eng.Process(context.Background(), *q.payload)
	var te *TransferError
	require.ErrorAs(t, err, &te)

	st := tracker.Get(7)
	require.True(t, st.Terminal())
	require.Contains(t, st.Status, "error: ")
	require.NoFileExists(t, path)
}

func TestProcessCredentialFailure(t *testing.T) {
	us := newUploadServer(t)
	creds := &fakeCreds{has: true}
	eng, tracker, q := newTestEngine(t, us, creds)
	path := writeTempVideo(t, 2048)

	_, err := eng.Start(context.Background(), UploadRequest{UserID: 7, FilePath: path, Title: "clip"})
	require.NoError(t, err)

	// Credential expires between acceptance and execution.
	creds.validErr = errors.New("no usable credential")
	require.Error(t, eng.Process(context.Background(), *q.payload))

	st := tracker.Get(7)
	require.True(t, st.Terminal())
	require.Contains(t, st.Status, "error: ")
	require.Equal(t, 0, us.putCount())
	require.NoFileExists(t, path)
}

func TestProcessRecoversPanic(t *testing.T) {
	us := newUploadServer(t)
	creds := &fakeCreds{has: true}
	eng, tracker, q := newTestEngine(t, us, creds)
	path := writeTempVideo(t, 2048)

	_, err := eng.Start(context.Background(), UploadRequest{UserID: 7, FilePath: path, Title: "clip"})
	require.NoError(t, err)

	creds.panics = true
	err = eng.Process(context.Background(), *q.payload)
	require.ErrorContains(t, err, "upload worker crashed")

	st := tracker.Get(7)
	require.True(t, st.Terminal())
	require.Contains(t, st.Status, "error: ")
	require.NoFileExists(t, path)
}

func TestNewEngineDefaults(t *testing.T) {
	eng := NewEngine(&fakeCreds{}, &oauth2.Config{}, NewTracker(), &captureQueue{}, Config{})
	require.Equal(t, DefaultUploadURL, eng.cfg.UploadURL)
	require.Equal(t, int64(DefaultChunkSize), eng.cfg.ChunkSize)
	require.Equal(t, DefaultMaxRetries, eng.cfg.MaxRetries)
}
