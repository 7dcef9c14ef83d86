package uploader

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerGetUnknownUser(t *testing.T) {
	tr := NewTracker()
	st := tr.Get(1)
	require.Equal(t, StatusNoUploads, st.Status)
	require.False(t, st.Terminal())
}

func TestTrackerLastWriterWins(t *testing.T) {
	tr := NewTracker()
	tr.Record(1, Status{Status: StatusUploading, Progress: 10, File: "a.mp4"})
	tr.Record(1, Status{Status: StatusUploading, Progress: 55, File: "a.mp4"})
	tr.Record(2, Status{Status: StatusCompleted, Progress: 100, File: "b.mp4", VideoID: "x"})

	require.Equal(t, 55, tr.Get(1).Progress)
	require.Equal(t, "x", tr.Get(2).VideoID)
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, Status{Status: StatusUploading}.Terminal())
	require.False(t, Status{Status: StatusNoUploads}.Terminal())
	require.True(t, Status{Status: StatusCompleted}.Terminal())
	require.True(t, Status{Status: "error: transfer failed"}.Terminal())
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for p := 0; p <= 100; p += 10 {
				tr.Record(int64(i%4), Status{Status: StatusUploading, Progress: p})
				_ = tr.Get(int64(i % 4))
			}
		}(i)
	}
	wg.Wait()
	require.NotEqual(t, StatusNoUploads, tr.Get(0).Status)
}
