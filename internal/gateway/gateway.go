// Package gateway exposes the inbound command surface: the LINE webhook
// endpoint plus health and metrics. Public exposure (ngrok, reverse proxy)
// is an operational concern outside this process.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ansa1019/tool/internal/transport/line"
	logx "github.com/ansa1019/tool/pkg/logx"
)

const maxWebhookBody = 1 << 20

type Config struct {
	Addr          string
	ChannelSecret string // enables webhook signature verification when set
}

// Handler consumes one inbound chat line.
type Handler interface {
	Handle(ctx context.Context, text string)
}

type Server struct {
	cfg     Config
	handler Handler
	log     logx.Logger

	srv *http.Server
}

func New(cfg Config, handler Handler, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:5000"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, handler: handler, log: log}
}

// Handler builds the gateway mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/linebot", s.webhook)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start runs the HTTP server until ctx is done or ListenAndServe fails.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info("gateway listening", logx.String("addr", s.cfg.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
		return
	}

	// A handler panic must answer 500, never kill the server.
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("webhook handler panicked", logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprint(rec)})
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if err := line.VerifySignature(s.cfg.ChannelSecret, body, r.Header.Get(line.SignatureHeader)); err != nil {
		s.log.Warn("webhook signature rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return
	}

	req, err := line.DecodeWebhook(body)
	if err != nil {
		s.log.Warn("webhook payload rejected", logx.Err(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	for _, ev := range req.Events {
		if ev.Type != "message" || ev.Message == nil {
			continue
		}
		text := ev.Message.Text
		if text == "" {
			continue
		}
		s.handler.Handle(r.Context(), text)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
