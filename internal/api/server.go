package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"FlowPilot-Chain/internal/engine"
	"FlowPilot-Chain/internal/session"
)

// Server 负责暴露 REST 接口，把对话与确认请求转交给引擎。
type Server struct {
	addr   string
	engine *engine.Engine
	store  session.Store
}

// ChatRequest 是对话接口的请求体。
type ChatRequest struct {
	Content string `json:"content"`
	UserID  string `json:"user_id"`
}

// ConfirmRequest 是确认接口的请求体。
type ConfirmRequest struct {
	ActionID  string `json:"action_id"`
	Confirmed bool   `json:"confirmed"`
	UserID    string `json:"user_id"`
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, eng *engine.Engine, store session.Store) *Server {
	return &Server{addr: addr, engine: eng, store: store}
}

// Handler 返回完整的路由表，便于测试直接挂载。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat", s.handleChat)
	mux.HandleFunc("/api/v1/confirm", s.handleConfirm)
	mux.HandleFunc("/api/v1/conversations/", s.handleConversation)
	mux.HandleFunc("/api/v1/pending", s.handlePending)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// handleChat 处理一条用户消息。
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		http.Error(w, "引擎未初始化", http.StatusServiceUnavailable)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" || strings.TrimSpace(req.UserID) == "" {
		http.Error(w, "content 与 user_id 均不能为空", http.StatusBadRequest)
		return
	}

	response := s.engine.HandleMessage(r.Context(), req.UserID, req.Content)
	writeJSON(w, http.StatusOK, response)
}

// handleConfirm 处理用户对待确认操作的答复。
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		http.Error(w, "引擎未初始化", http.StatusServiceUnavailable)
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ActionID) == "" || strings.TrimSpace(req.UserID) == "" {
		http.Error(w, "action_id 与 user_id 均不能为空", http.StatusBadRequest)
		return
	}

	response := s.engine.HandleConfirmation(r.Context(), req.UserID, req.ActionID, req.Confirmed)
	writeJSON(w, http.StatusOK, response)
}

// handleConversation 查询或清空指定用户的会话历史。
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "会话存储未初始化", http.StatusServiceUnavailable)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/api/v1/conversations/")
	if userID == "" || strings.Contains(userID, "/") {
		http.Error(w, "路径中缺少 user_id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		history, err := s.store.List(r.Context(), userID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id": userID,
			"history": history,
		})
	case http.MethodDelete:
		if err := s.store.Clear(r.Context(), userID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id": userID,
			"cleared": true,
		})
	default:
		http.Error(w, "仅支持 GET/DELETE", http.StatusMethodNotAllowed)
	}
}

// handlePending 列出尚未确认且未过期的操作。
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		http.Error(w, "引擎未初始化", http.StatusServiceUnavailable)
		return
	}
	pending := s.engine.Pending()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(pending),
		"actions": pending,
	})
}

// handleHealth 报告服务状态与引擎运行计数。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	payload := map[string]any{"status": "ok"}
	if s.engine != nil {
		payload["stats"] = s.engine.Stats()
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
