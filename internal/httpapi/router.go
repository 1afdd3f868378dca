package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/pmsync/pmsync/internal/dispatch"
	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/mutate"
	"github.com/pmsync/pmsync/internal/pmauth"
	"github.com/pmsync/pmsync/internal/pmerr"
	"github.com/pmsync/pmsync/internal/shutdown"
	"github.com/pmsync/pmsync/internal/store"
	"github.com/pmsync/pmsync/internal/wire"
)

// Server holds dependencies for the REST collaborator API. The
// WebSocket plane (C10/C11) is the primary surface for realtime
// project-management operations; this layer covers admin/health
// endpoints and plain CRUD for clients that don't hold a live socket.
type Server struct {
	Store       *store.Store
	WorkItems   *mutate.WorkItemMutator
	Sprints     *mutate.SprintMutator
	Comments    *mutate.CommentMutator
	Deps        *mutate.DependencyMutator
	TimeEntries *mutate.TimeEntryMutator
	Validator   *pmauth.Validator // nil in auth-disabled/desktop deployments
	Coordinator *shutdown.Coordinator
	WS          *WebSocketUpgrader
	Dispatcher  *dispatch.Dispatcher

	RateLimitConfig RateLimitInfo
}

// DefaultRateLimitConfig provides the default rate limiting configuration for REST endpoints
var DefaultRateLimitConfig = RateLimitInfo{
	WindowSeconds: 60,
	MaxRequests:   600,
	Burst:         120,
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id"`
}

func writeError(w http.ResponseWriter, r *http.Request, code int, message string) {
	correlationID := GetCorrelationID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{Error: message, CorrelationID: correlationID})
}

// writeDomainError classifies a pmerr.Error into the matching HTTP
// status, mirroring C11's wire-level error classification for the
// request/response surface.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	classified, ok := pmerr.As(err)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeError(w, r, classified.Kind.HTTPStatus(), classified.Message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// Routes assembles the full HTTP surface: unauthenticated health
// probes, the WebSocket upgrade, and an authenticated REST CRUD group
// for project-management entities (plus the admin shutdown route).
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Store.Pool.Ping(r.Context()); err != nil {
			writeError(w, r, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/ws", s.WS.Handler)

	r.Group(func(r chi.Router) {
		if s.Validator != nil {
			r.Use(AuthMiddleware(s.Validator))
		}
		r.Use(RateLimitMiddleware(s.RateLimitConfig))

		r.Post("/v1/projects", s.createProject)
		r.Get("/v1/projects/{id}", s.getProject)

		r.Post("/v1/work-items", s.createWorkItem)
		r.Get("/v1/work-items/{id}", s.getWorkItem)
		r.Get("/v1/projects/{id}/work-items", s.listWorkItems)
		r.Patch("/v1/work-items/{id}", s.updateWorkItem)

		r.Post("/v1/sprints", s.createSprint)
		r.Patch("/v1/sprints/{id}", s.updateSprint)

		r.Post("/v1/comments", s.createComment)
		r.Get("/v1/work-items/{id}/comments", s.listComments)

		r.Post("/v1/dependencies", s.createDependency)
		r.Get("/v1/work-items/{id}/dependencies", s.listDependencies)

		r.Post("/v1/time-entries", s.createTimeEntry)
		r.Get("/v1/work-items/{id}/time-entries", s.listTimeEntries)

		r.Get("/v1/{entityType}/{id}/activity", s.listActivity)

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/admin/shutdown", s.adminShutdown)
		})
	})

	log.Info().Msg("http routes registered")
	return r
}

// adminOnly requires an authenticated caller: a non-empty user id set by
// AuthMiddleware. It does not check the caller's roles, so any
// authenticated user passes. Without a configured validator no request
// carries a user id, and the guarded routes always answer 401.
func adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserID(r.Context()) == "" {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminShutdown(w http.ResponseWriter, r *http.Request) {
	s.Coordinator.Shutdown()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutdown initiated"})
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Key   string `json:"key"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	userID := UserID(r.Context())
	project, err := s.Store.Projects.Create(r.Context(), domain.NewProject(req.Title, req.Key, userID))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	project, err := s.Store.Projects.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) createWorkItem(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateWorkItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := s.WorkItems.Create(r.Context(), TenantID(r.Context()), UserID(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getWorkItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := s.Store.WorkItems.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) listWorkItems(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	items, err := s.Store.WorkItems.ListByProject(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) updateWorkItem(w http.ResponseWriter, r *http.Request) {
	var req wire.UpdateWorkItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	updated, err := s.WorkItems.Update(r.Context(), TenantID(r.Context()), UserID(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) createSprint(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateSprintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := s.Sprints.Create(r.Context(), TenantID(r.Context()), UserID(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateSprint(w http.ResponseWriter, r *http.Request) {
	var req wire.UpdateSprintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	updated, err := s.Sprints.Update(r.Context(), TenantID(r.Context()), UserID(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := s.Comments.Create(r.Context(), TenantID(r.Context()), UserID(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	workItemID := chi.URLParam(r, "id")
	comments, err := s.Store.Comments.ListByWorkItem(r.Context(), workItemID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) createDependency(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateDependencyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := s.Deps.Create(r.Context(), TenantID(r.Context()), UserID(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listDependencies(w http.ResponseWriter, r *http.Request) {
	workItemID := chi.URLParam(r, "id")
	deps, err := s.Store.Deps.ListByWorkItem(r.Context(), workItemID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

func (s *Server) createTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateTimeEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := s.TimeEntries.Create(r.Context(), TenantID(r.Context()), UserID(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listTimeEntries(w http.ResponseWriter, r *http.Request) {
	workItemID := chi.URLParam(r, "id")
	entries, err := s.Store.Time.ListByWorkItem(r.Context(), workItemID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "id")
	logs, err := s.Store.Activity.ListByEntity(r.Context(), entityType, entityID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
