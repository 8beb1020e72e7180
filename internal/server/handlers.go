package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/agora-sim/agora/internal/auth"
	"github.com/agora-sim/agora/internal/engine"
	"github.com/agora-sim/agora/internal/idgen"
	"github.com/agora-sim/agora/internal/model"
	"github.com/agora-sim/agora/internal/store"
)

const defaultAgentBaseID = "agent"

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  store.Controller
	engine              *engine.Engine
	jwtMgr              *auth.JWTManager
	idGen               *idgen.Generator
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	DB                  store.Controller
	Engine              *engine.Engine
	JWTMgr              *auth.JWTManager
	IDGen               *idgen.Generator
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		engine:              d.Engine,
		jwtMgr:              d.JWTMgr,
		idGen:               d.IDGen,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleRegisterAgent handles POST /agents/register. The requested id is a
// base; the assigned id gets a unique numeric suffix.
func (h *Handlers) HandleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req model.AgentRegistrationRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body")
		return
	}

	baseID := req.Agent.ID
	if baseID == "" {
		baseID = defaultAgentBaseID
	}

	agentID, err := h.idGen.UniqueAgentID(r.Context(), baseID, h.db.Agents())
	if err != nil {
		h.logger.Error("agent id generation failed", "base_id", baseID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "could not assign agent id")
		return
	}

	profile := model.AgentProfile{ID: agentID, Metadata: req.Agent.Metadata}
	if _, err := h.db.Agents().Create(r.Context(), store.Row[model.AgentProfile]{
		ID:   agentID,
		Data: profile,
	}); err != nil {
		h.logger.Error("agent create failed", "agent_id", agentID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "could not register agent")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(agentID)
	if err != nil {
		h.logger.Error("token issue failed", "agent_id", agentID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "could not issue token")
		return
	}

	writeJSON(w, http.StatusCreated, model.AgentRegistrationResponse{
		Agent:     profile,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleListAgents handles GET /agents with limit/after cursor pagination.
func (h *Handlers) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	after := r.URL.Query().Get("after")

	fetch := store.Range{After: after}
	if limit > 0 {
		fetch.Limit = limit + 1
	}
	rows, err := h.db.Agents().GetAll(r.Context(), fetch)
	if err != nil {
		h.logger.Error("agent list failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "could not list agents")
		return
	}

	hasMore := limit > 0 && len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	// The count is a separate read, not a snapshot with the page; under
	// concurrent registration Total can differ from what the page implies.
	total, err := h.db.Agents().Count(r.Context())
	if err != nil {
		h.logger.Error("agent count failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "could not count agents")
		return
	}

	resp := model.AgentListResponse{
		Items:   make([]model.AgentProfile, 0, len(rows)),
		Total:   total,
		HasMore: hasMore,
	}
	for _, row := range rows {
		resp.Items = append(resp.Items, row.Data)
	}
	if len(rows) > 0 {
		resp.Cursor = rows[len(rows)-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetAgent handles GET /agents/{agent_id}.
func (h *Handlers) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")

	row, err := h.db.Agents().GetByID(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "agent not found")
			return
		}
		h.logger.Error("agent get failed", "agent_id", agentID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "could not load agent")
		return
	}
	writeJSON(w, http.StatusOK, model.AgentGetResponse{Agent: row.Data})
}

// HandleActionProtocol handles GET /actions/protocol: the registered action
// descriptors for dynamic discovery.
func (h *Handlers) HandleActionProtocol(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": h.engine.Descriptors(),
	})
}

// HandleExecuteAction handles POST /actions/execute. The submitting agent is
// the authenticated one; callers cannot act as someone else.
func (h *Handlers) HandleExecuteAction(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "missing credentials")
		return
	}

	var req model.ActionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body")
		return
	}

	result, err := h.engine.Submit(r.Context(), claims.AgentID, req)
	if err != nil {
		var rej *engine.Rejection
		if errors.As(err, &rej) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeRejected, rej.Error())
			return
		}
		var fault *engine.Fault
		if errors.As(err, &fault) {
			writeError(w, r, http.StatusBadGateway, model.ErrCodeFault, "action handler failed")
			return
		}
		h.logger.Error("action submit failed", "agent_id", claims.AgentID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, model.ActionExecuteResponse{Result: result})
}

// HandleCreateLog handles POST /logs.
func (h *Handlers) HandleCreateLog(w http.ResponseWriter, r *http.Request) {
	var entry model.Log
	if err := decodeJSON(w, r, &entry, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body")
		return
	}
	if entry.Level == "" {
		entry.Level = model.LogInfo
	}

	row, err := h.db.Logs().Create(r.Context(), store.Row[model.Log]{Data: entry})
	if err != nil {
		h.logger.Error("log create failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "could not store log")
		return
	}
	writeJSON(w, http.StatusCreated, model.LogCreateResponse{
		ID:        row.ID,
		CreatedAt: row.CreatedAt,
	})
}

// HandleListLogs handles GET /logs with limit/after cursor pagination.
func (h *Handlers) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	after := r.URL.Query().Get("after")

	fetch := store.Range{After: after}
	if limit > 0 {
		fetch.Limit = limit + 1
	}
	rows, err := h.db.Logs().GetAll(r.Context(), fetch)
	if err != nil {
		h.logger.Error("log list failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "could not list logs")
		return
	}

	hasMore := limit > 0 && len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	resp := model.LogListResponse{
		Items:   make([]model.LogEntry, 0, len(rows)),
		HasMore: hasMore,
	}
	for _, row := range rows {
		resp.Items = append(resp.Items, model.LogEntry{
			ID:        row.ID,
			CreatedAt: row.CreatedAt,
			Log:       row.Data,
		})
	}
	if len(rows) > 0 {
		resp.Cursor = rows[len(rows)-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("health check ping failed", "error", err)
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
