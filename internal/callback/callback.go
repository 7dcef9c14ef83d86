// Package callback hosts the minimal HTTP listener that receives the OAuth
// redirect and shows the authorization code for the user to relay back
// through the bot. It also serves the liveness endpoint.
package callback

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

var page = template.Must(template.New("callback").Parse(`<html>
<body>
<h2>Authorization Successful!</h2>
<p>Copy the code below and send it to the Telegram bot:</p>
<textarea readonly style="width: 100%; height: 50px; font-family: monospace;">{{.Code}}</textarea>
<p>Go back to Telegram and paste this code.</p>
</body>
</html>
`))

// Handler returns the callback mux, separated from the server so tests can
// hit it directly.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Error: No authorization code received", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := page.Execute(w, struct{ Code string }{Code: code}); err != nil {
			log.Error().Err(err).Msg("render callback page")
		}
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	return mux
}

type Server struct {
	srv *http.Server
}

func NewServer(addr string) *Server {
	return &Server{srv: &http.Server{
		Addr:         addr,
		Handler:      Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

// Start serves in the calling goroutine until Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("callback listener up")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
