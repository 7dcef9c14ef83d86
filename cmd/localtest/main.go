// Command localtest uploads one local file with a previously stored
// credential, without going through Telegram. Useful for exercising the OAuth
// store and the chunked upload end to end:
//
//	go run ./cmd/localtest <user_id> <input.mp4> <title> [description]
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-ytbridge/internal/auth"
	"github.com/you/tg-ytbridge/internal/config"
	"github.com/you/tg-ytbridge/internal/jobs"
	"github.com/you/tg-ytbridge/internal/logx"
	"github.com/you/tg-ytbridge/internal/uploader"
)

// inlineQueue runs jobs in-process instead of going through asynq.
type inlineQueue struct {
	eng  *uploader.Engine
	done chan error
}

func (q *inlineQueue) Enqueue(ctx context.Context, p jobs.UploadVideoPayload) error {
	go func() { q.done <- q.eng.Process(context.WithoutCancel(ctx), p) }()
	return nil
}

func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: go run ./cmd/localtest <user_id> <input.mp4> <title> [description]")
		return
	}
	_ = godotenv.Load()
	logx.Setup(logx.FromEnv("localtest"))

	userID, err := strconv.ParseInt(os.Args[1], 10, 64)
	if err != nil {
		log.Fatal().Err(err).Msg("bad user id")
	}
	file, title := os.Args[2], os.Args[3]
	description := ""
	if len(os.Args) > 4 {
		description = os.Args[4]
	}

	c := config.Load()
	oauthCfg := auth.NewOAuthConfig(c.ClientID, c.ClientSecret, c.RedirectURI)
	store, err := auth.NewStore(oauthCfg, c.TokensDir(), c.StatesDir())
	if err != nil {
		log.Fatal().Err(err).Msg("credential store init")
	}
	if !store.Has(userID) {
		log.Fatal().Int64("uid", userID).Msg("no stored credential; authenticate via the bot first")
	}

	tracker := uploader.NewTracker()
	q := &inlineQueue{done: make(chan error, 1)}
	eng := uploader.NewEngine(store, oauthCfg, tracker, q, uploader.Config{
		ChunkSize:    c.ChunkSize,
		MaxRetries:   c.MaxRetries,
		ChunkTimeout: c.ChunkTimeout,
	})
	q.eng = eng

	jobID, err := eng.Start(context.Background(), uploader.UploadRequest{
		UserID:      userID,
		FilePath:    file,
		Title:       title,
		Description: description,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("upload rejected")
	}
	log.Info().Str("job", jobID).Msg("upload started")

	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()
	for {
		select {
		case <-q.done:
			st := tracker.Get(userID)
			if st.Status == uploader.StatusCompleted {
				fmt.Printf("completed: https://youtube.com/watch?v=%s\n", st.VideoID)
				return
			}
			fmt.Printf("failed: %s\n", st.Status)
			os.Exit(1)
		case <-tick.C:
			st := tracker.Get(userID)
			fmt.Printf("%s %d%%\n", st.Status, st.Progress)
		}
	}
}
