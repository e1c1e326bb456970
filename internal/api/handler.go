package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/swarmfield/internal/orchestrator"
	"github.com/nidhogg/swarmfield/internal/swarm"
)

// Environment is the slice of the swarm environment the API exposes.
// *swarm.Environment satisfies it.
type Environment interface {
	StrongestConcepts(ctx context.Context, limit int) ([]swarm.Concept, error)
	Facts(ctx context.Context, query string, limit int) ([]swarm.Fact, error)
	AvailableTasks(ctx context.Context, limit int) ([]swarm.Task, error)
	AddTask(ctx context.Context, description, sourceAgentID string) (int64, error)
}

// Handler serves the read-mostly observation surface over the swarm
// environment: concepts, facts, tasks, and recent events.
type Handler struct {
	env    Environment
	events *orchestrator.EventLog // may be nil
	logger *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(env Environment, events *orchestrator.EventLog, logger *zap.Logger) *Handler {
	return &Handler{env: env, events: events, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/concepts", h.listConcepts)
		r.Get("/facts", h.listFacts)
		r.Get("/tasks", h.listTasks)
		r.Post("/tasks", h.createTask)
		r.Get("/events", h.listEvents)
	})

	return r
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listConcepts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 5)
	concepts, err := h.env.StrongestConcepts(r.Context(), limit)
	if err != nil {
		h.logger.Error("list concepts failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if concepts == nil {
		concepts = []swarm.Concept{}
	}
	writeJSON(w, http.StatusOK, concepts)
}

func (h *Handler) listFacts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	facts, err := h.env.Facts(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.logger.Error("list facts failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if facts == nil {
		facts = []swarm.Fact{}
	}
	writeJSON(w, http.StatusOK, facts)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	tasks, err := h.env.AvailableTasks(r.Context(), limit)
	if err != nil {
		h.logger.Error("list tasks failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if tasks == nil {
		tasks = []swarm.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

type createTaskRequest struct {
	Description   string `json:"description"`
	SourceAgentID string `json:"source_agent_id"`
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.SourceAgentID == "" {
		req.SourceAgentID = "api"
	}
	id, err := h.env.AddTask(r.Context(), req.Description, req.SourceAgentID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeJSON(w, http.StatusOK, []orchestrator.Event{})
		return
	}
	limit := queryInt(r, "limit", 20)
	events, err := h.events.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
