package httpapi

import (
	"net/http"

	"github.com/fleetwire/controlplane/internal/capability"
	"github.com/fleetwire/controlplane/internal/dispatch"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Gated tool declarations, one per capability-gated endpoint (spec §4.3:
// "each tool declares a required capability string").
var (
	toolCreateTask   = capability.Tool{Name: "create_task", RequiredCapability: "dispatch.write", RequiredScope: capability.ScopeWrite}
	toolGetTasks     = capability.Tool{Name: "get_tasks", RequiredCapability: "dispatch.read", RequiredScope: capability.ScopeRead}
	toolClaimTask    = capability.Tool{Name: "claim_task", RequiredCapability: "dispatch.claim", RequiredScope: capability.ScopeWrite}
	toolUnclaimTask  = capability.Tool{Name: "unclaim_task", RequiredCapability: "dispatch.claim", RequiredScope: capability.ScopeWrite}
	toolCompleteTask = capability.Tool{Name: "complete_task", RequiredCapability: "dispatch.claim", RequiredScope: capability.ScopeWrite}
	toolBatch        = capability.Tool{Name: "batch_dispatch", RequiredCapability: "dispatch.claim", RequiredScope: capability.ScopeWrite}

	toolSendMessage = capability.Tool{Name: "send_message", RequiredCapability: "relay.write", RequiredScope: capability.ScopeWrite}
	toolGetMessages = capability.Tool{Name: "get_messages", RequiredCapability: "relay.read", RequiredScope: capability.ScopeRead}

	toolSessionWrite = capability.Tool{Name: "session_write", RequiredCapability: "session.write", RequiredScope: capability.ScopeWrite}
	toolSessionRead  = capability.Tool{Name: "session_read", RequiredCapability: "session.write", RequiredScope: capability.ScopeRead}

	toolReadAudit   = capability.Tool{Name: "read_audit", RequiredCapability: "admin", RequiredScope: capability.ScopeAdmin, AdminOnly: true}
	toolReadMetrics = capability.Tool{Name: "read_metrics", RequiredCapability: "admin", RequiredScope: capability.ScopeAdmin, AdminOnly: true}
	toolFleetRead   = capability.Tool{Name: "fleet_read", RequiredCapability: "admin", RequiredScope: capability.ScopeAdmin, AdminOnly: true}
)

// taskTypeRoute wires a task-creating route to its dispatch.Type, covering
// /v1/questions, /v1/sprints, /v1/sprint-stories, /v1/dream as thin views
// over the same task store (spec §6: "representative, same semantics as
// tool layer").
func (s *Server) taskTypeRoute(r chi.Router, path string, t dispatch.Type) {
	r.With(s.RateLimitMiddleware(string(t)), s.RequireCapability(toolCreateTask)).
		Post(path, s.createTask(t))
}

// Routes builds the chi router for the whole control plane (spec §2's
// request flow: "HTTP ingress -> body limit + decode -> credential
// detection -> validator -> tenant resolution -> rate limiter ->
// capability gate -> compliance check -> handler -> store transaction ->
// response envelope").
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(SessionMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", prometheusHandler().ServeHTTP)
	r.Get("/.well-known/oauth-authorization-server", s.oauthMetadata)

	// OAuth endpoints: no bearer auth required (DCR/authorize/token are the
	// credential bootstrap itself), but still behind the correlation/body
	// middleware above and their own IP brake.
	r.Group(func(r chi.Router) {
		r.Post("/register", s.registerClient)
		r.Get("/authorize", s.authorize)
		r.Get("/oauth/consent", s.consent)
		r.Post("/oauth/consent", s.consent)
		r.Get("/authorize/callback", s.authorizeCallback)
		r.Post("/token", s.token)
		r.Post("/revoke", s.revokeToken)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.AuthMiddleware)
		r.Use(s.ComplianceMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(s.RequireCapability(toolGetTasks))
			r.With(s.RateLimitMiddleware("get_tasks")).Get("/v1/tasks", s.listTasks)
			r.With(s.RateLimitMiddleware("get_tasks")).Get("/v1/tasks/{id}", s.getTask)
		})
		s.taskTypeRoute(r, "/v1/tasks", dispatch.TypeTask)
		s.taskTypeRoute(r, "/v1/questions", dispatch.TypeQuestion)
		s.taskTypeRoute(r, "/v1/sprints", dispatch.TypeSprint)
		s.taskTypeRoute(r, "/v1/sprint-stories", dispatch.TypeSprintStory)
		s.taskTypeRoute(r, "/v1/dream", dispatch.TypeDream)

		r.With(s.RateLimitMiddleware("claim_task"), s.RequireCapability(toolClaimTask)).
			Post("/v1/tasks/{id}/claim", s.claimTask)
		r.With(s.RateLimitMiddleware("unclaim_task"), s.RequireCapability(toolUnclaimTask)).
			Post("/v1/tasks/{id}/unclaim", s.unclaimTask)
		r.With(s.RateLimitMiddleware("complete_task"), s.RequireCapability(toolCompleteTask)).
			Post("/v1/tasks/{id}/complete", s.completeTask)
		r.With(s.RateLimitMiddleware("batch_claim"), s.RequireCapability(toolBatch)).
			Post("/v1/tasks/batch-claim", s.batchClaimTasks)
		r.With(s.RateLimitMiddleware("batch_complete"), s.RequireCapability(toolBatch)).
			Post("/v1/tasks/batch-complete", s.batchCompleteTasks)

		r.Group(func(r chi.Router) {
			r.Use(s.RateLimitMiddleware("relay"))
			r.With(s.RequireCapability(toolSendMessage)).Post("/v1/messages", s.sendMessage)
			r.With(s.RequireCapability(toolGetMessages)).Get("/v1/messages", s.listMessages)
			r.With(s.RequireCapability(toolGetMessages)).Get("/v1/messages/sent", s.listMessages)
			r.With(s.RequireCapability(toolGetMessages)).Get("/v1/messages/history", s.listMessages)
			r.With(s.RequireCapability(toolGetMessages)).Get("/v1/messages/unread", s.getUnreadMessages)
			r.With(s.RequireCapability(toolSendMessage)).Post("/v1/messages/mark_read", s.markMessagesRead)
			r.With(s.RequireCapability(toolGetMessages)).Get("/v1/dead-letters", s.listDeadLetters)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.RateLimitMiddleware("session"))
			r.With(s.RequireCapability(toolSessionWrite)).Post("/v1/sessions", s.createSession)
			r.With(s.RequireCapability(toolSessionRead)).Get("/v1/sessions", s.listSessions)
			r.With(s.RequireCapability(toolSessionRead)).Get("/v1/sessions/history", s.listSessions)
			r.With(s.RequireCapability(toolSessionRead)).Get("/v1/sessions/{id}", s.getSession)
			r.With(s.RequireCapability(toolSessionWrite)).Patch("/v1/sessions/{id}", s.patchSession)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.RateLimitMiddleware("keys"), s.RequireCapability(adminKeysTool))
			r.Post("/v1/keys", s.createKey)
			r.Get("/v1/keys", s.listKeys)
			r.Delete("/v1/keys/{hash}", s.revokeKey)
			r.Post("/v1/keys/rotate", s.rotateKey)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.RequireCapability(toolReadAudit))
			r.Get("/v1/audit", s.listAudit)
			r.Get("/v1/traces", s.listTraces)
			r.Get("/v1/traces/{traceId}", s.getTrace)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.RequireCapability(toolReadMetrics))
			r.Get("/v1/metrics/cost-summary", s.costSummary)
			r.Get("/v1/metrics/comms", s.commsMetrics)
			r.Get("/v1/metrics/operational", s.operationalMetrics)
			r.Get("/v1/metrics/contention", s.contentionMetrics)
			r.Get("/v1/metrics/context-utilization", s.contextUtilizationMetrics)
			r.Get("/v1/metrics/ack-compliance", s.ackCompliance)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.RequireCapability(toolFleetRead))
			r.Get("/v1/fleet/health", s.fleetHealth)
			r.Get("/v1/fleet/timeline", s.fleetTimeline)
			r.Post("/v1/fleet/snapshots", s.createFleetSnapshot)
		})
	})

	log.Info().Msg("httpapi: routes registered")
	return r
}
