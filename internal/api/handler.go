package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/usecase"
	"github.com/DevRickLin/feishu-chat-analyst/internal/metrics"
)

// Server is the local status API. It exposes counts and ids, never message content.
type Server struct {
	chatUC   *usecase.ChatUsecase
	access   *usecase.AccessController
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	server *http.Server
	addr   string
}

// ChatsResponse is the body of GET /api/chats
type ChatsResponse struct {
	Chats         []domain.ChatStats `json:"chats"`
	TotalMessages int                `json:"total_messages"`
}

// AdminsResponse is the body of GET /api/admins
type AdminsResponse struct {
	MainAdmin  string   `json:"main_admin"`
	Authorized []string `json:"authorized"`
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Chats         int    `json:"chats"`
}

// NewServer creates a new API server
func NewServer(
	chatUC *usecase.ChatUsecase,
	access *usecase.AccessController,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	addr string,
	logger *slog.Logger,
) *Server {
	return &Server{
		chatUC:   chatUC,
		access:   access,
		metrics:  m,
		gatherer: gatherer,
		addr:     addr,
		logger:   logger.With("component", "api"),
	}
}

// Handler returns the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/chats", s.handleChats)
	mux.HandleFunc("GET /api/chats/{chat_id}", s.handleChat)
	mux.HandleFunc("GET /api/admins", s.handleAdmins)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	chats := s.chatUC.Overview(r.Context())
	resp := ChatsResponse{Chats: chats}
	for _, c := range chats {
		resp.TotalMessages += c.TotalMessages
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chat_id")
	for _, c := range s.chatUC.Overview(r.Context()) {
		if c.ChatID == chatID {
			s.writeJSON(w, c)
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "unknown chat")
}

func (s *Server) handleAdmins(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, AdminsResponse{
		MainAdmin:  s.access.MainAdmin(),
		Authorized: s.access.List(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, StatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.metrics.StartTime).Seconds()),
		Chats:         len(s.chatUC.Overview(r.Context())),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
