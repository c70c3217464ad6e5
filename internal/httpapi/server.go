package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yuqie6/PodPulse/internal/eventbus"
	"github.com/yuqie6/PodPulse/internal/observability"
)

// StatusProvider 提供 /health 的数据
type StatusProvider interface {
	Status(ctx context.Context) (*observability.Status, error)
}

// Options 本地 HTTP 参数
type Options struct {
	ListenAddr string // e.g. "127.0.0.1:9464"
}

// LocalServer Agent 的本地只读端点：/health /metrics /api/events
type LocalServer struct {
	ln      net.Listener
	srv     *http.Server
	baseURL string
}

// Start 监听并在后台提供服务；ctx 结束时自动关闭
func Start(ctx context.Context, status StatusProvider, metrics *observability.Metrics, hub *eventbus.Hub, opts Options) (*LocalServer, error) {
	if status == nil {
		return nil, fmt.Errorf("status 不能为空")
	}
	if strings.TrimSpace(opts.ListenAddr) == "" {
		opts.ListenAddr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:           NewHandler(status, metrics, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ls := &LocalServer{
		ln:      ln,
		srv:     srv,
		baseURL: "http://" + ln.Addr().String(),
	}

	go func() {
		<-ctx.Done()
		_ = ls.Shutdown(context.Background())
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server 异常退出", "error", err)
		}
	}()

	slog.Info("本地 HTTP 已启动", "base_url", ls.baseURL)
	return ls, nil
}

// NewHandler 构建路由
func NewHandler(status StatusProvider, metrics *observability.Metrics, hub *eventbus.Hub) http.Handler {
	if hub == nil {
		hub = eventbus.NewHub()
	}
	a := &apiServer{status: status, hub: hub}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /api/events", a.handleSSE)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func (s *LocalServer) BaseURL() string {
	if s == nil {
		return ""
	}
	return s.baseURL
}

func (s *LocalServer) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type apiServer struct {
	status StatusProvider
	hub    *eventbus.Hub
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := a.status.Status(r.Context())
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, observability.ErrNotReady) {
			code = http.StatusServiceUnavailable
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *apiServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	var types []string
	if raw := strings.TrimSpace(r.URL.Query().Get("types")); raw != "" {
		types = strings.Split(raw, ",")
	}
	sub := a.hub.Subscribe(ctx, 32, types...)

	_, _ = io.WriteString(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case evt, ok := <-sub:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt)
			_, _ = io.WriteString(w, "event: "+sanitizeSSEName(evt.Type)+"\n")
			_, _ = io.WriteString(w, "data: ")
			_, _ = w.Write(b)
			_, _ = io.WriteString(w, "\n\n")
			flusher.Flush()
		}
	}
}

func sanitizeSSEName(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return "message"
	}
	n = strings.ReplaceAll(n, "\n", "")
	n = strings.ReplaceAll(n, "\r", "")
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
