package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/directory"
	"github.com/lamwimham/neuroflow/logging"
)

// ServerOptions configure a Server.
type ServerOptions struct {
	// Addr is the listen address for Start, e.g. ":8080".
	Addr string
	// Logger receives structured request events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Server exposes this agent's collaboration surface over HTTP: assist calls
// plus the registry endpoints peers use to announce themselves and discover
// each other. Transport auth is the deployment's concern.
type Server struct {
	agentID string
	coord   *Coordinator
	dir     *directory.Directory
	opts    ServerOptions
}

// NewServer wires the HTTP surface to a coordinator and directory.
func NewServer(agentID string, coord *Coordinator, dir *directory.Directory, optFns ...func(o *ServerOptions)) *Server {
	opts := ServerOptions{
		Addr:   ":8080",
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{agentID: agentID, coord: coord, dir: dir, opts: opts}
}

// Handler returns the routed handler, usable directly with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /assist", s.handleAssist)
	mux.HandleFunc("POST /registry/register", s.handleRegister)
	mux.HandleFunc("POST /registry/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("GET /registry/agents", s.handleListAgents)
	mux.HandleFunc("GET /registry/discover", s.handleDiscover)
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{Addr: s.opts.Addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.opts.Logger.Info("collab.server.listening", "addr", s.opts.Addr, "agent_id", s.agentID)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	var req AssistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Task == "" {
		jsonError(w, "task is required", http.StatusBadRequest)
		return
	}

	cc := req.CollaborationContext()
	s.opts.Logger.Info(
		"collab.assist.received",
		"request_id", req.RequestID,
		"depth", cc.Depth,
		"visited", len(cc.Visited),
	)

	start := time.Now()
	answer, err := s.coord.HandleWithContext(r.Context(), req.Task, cc)

	resp := AssistResponse{
		RequestID: req.RequestID,
		AgentID:   s.agentID,
		ElapsedMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Success = true
		resp.Result = answer
	}
	jsonResponse(w, resp)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if reg.ID == "" {
		jsonError(w, "id is required", http.StatusBadRequest)
		return
	}
	if !s.dir.Register(reg.PeerRecord()) {
		jsonError(w, "registration failed", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb Heartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if hb.SenderID == "" {
		jsonError(w, "senderId is required", http.StatusBadRequest)
		return
	}

	if !s.dir.ApplyHeartbeat(hb.SenderID, core.PeerStatus(hb.Status), hb.LatencyMs, hb.SuccessRate) {
		jsonError(w, "unknown agent", http.StatusNotFound)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	status := core.PeerStatus(r.URL.Query().Get("status"))
	capability := r.URL.Query().Get("capability")
	recs := s.dir.List(status, capability)
	if recs == nil {
		recs = []core.PeerRecord{}
	}
	jsonResponse(w, recs)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	capability := r.URL.Query().Get("capability")
	if capability == "" {
		jsonError(w, "capability is required", http.StatusBadRequest)
		return
	}
	limit := 5
	recs := s.dir.DiscoverByCapability(capability, limit)
	if recs == nil {
		recs = []core.PeerRecord{}
	}
	jsonResponse(w, recs)
}

func jsonResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
