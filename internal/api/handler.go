package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/report"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/rulesvc"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	rulesets  *rulesvc.Service
	evaluator *rules.Evaluator
	processor *report.Processor
	metrics   *metrics.Metrics
	version   string
	failOpen  bool
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, rulesets *rulesvc.Service, evaluator *rules.Evaluator, processor *report.Processor, m *metrics.Metrics, version string, failOpen bool) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		rulesets:  rulesets,
		evaluator: evaluator,
		processor: processor,
		metrics:   m,
		version:   version,
		failOpen:  failOpen,
	}
}

// EvaluateRequest is the request body for POST /api/v1/evaluate.
type EvaluateRequest struct {
	DocumentType string         `json:"documentType"`
	Domain       string         `json:"domain"`
	Jurisdiction string         `json:"jurisdiction"`
	Context      map[string]any `json:"context"`
}

// Evaluate handles POST /api/v1/evaluate: resolve the active ruleset, run
// every rule against the document context, reconcile the verdict, persist
// the report, and announce it on the bus.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.DocumentType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "documentType is required",
		})
		return
	}
	if req.Domain == "" || req.Jurisdiction == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "domain and jurisdiction are required",
		})
		return
	}
	if len(req.Context) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "context must not be empty",
		})
		return
	}

	key := domain.RulesetKey{Domain: req.Domain, Jurisdiction: req.Jurisdiction}

	rs, stale, err := h.rulesets.ActiveRuleset(ctx, tenantID, key)
	if err != nil {
		if !h.failOpen {
			slog.Error("no ruleset available", "scope", key.String(), "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "no active ruleset available for scope " + key.String(),
			})
			return
		}
		// Fail-open policy: the document cannot be checked, so it goes
		// to review with an empty finding list rather than blocking.
		rep := h.processor.Process(ctx, &report.Input{
			TenantID:     tenantID,
			DocumentType: req.DocumentType,
			Key:          key,
			TraceID:      traceID,
			StartTime:    start,
		})
		rep.Status = domain.StatusReview
		h.finishEvaluation(ctx, w, tenantID, rep, start)
		return
	}

	doc := domain.NewDocumentContext(req.Context)

	rulesStart := time.Now()
	res := h.evaluator.EvaluateRuleset(rs, doc)
	rulesMs := time.Since(rulesStart).Milliseconds()

	rep := h.processor.Process(ctx, &report.Input{
		TenantID:     tenantID,
		DocumentType: req.DocumentType,
		Key:          key,
		TraceID:      traceID,
		Result:       res,
		RulesetStale: stale,
		StartTime:    start,
		RulesMs:      rulesMs,
	})

	for _, v := range rep.Violations {
		h.metrics.IncrementViolation(string(v.Severity))
	}

	h.finishEvaluation(ctx, w, tenantID, rep, start)
}

// finishEvaluation persists the report, announces it, and responds.
func (h *Handler) finishEvaluation(ctx context.Context, w http.ResponseWriter, tenantID string, rep *domain.ValidationReport, start time.Time) {
	if h.repo != nil {
		if err := h.repo.SaveReport(ctx, tenantID, rep); err != nil {
			slog.Error("failed to save validation report", "id", rep.ID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]string{
			"reportId": rep.ID,
			"status":   string(rep.Status),
		})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicReportSaved, payload); err != nil {
			slog.Warn("failed to publish report event", "id", rep.ID, "error", err)
		}
	}

	h.metrics.IncrementDocumentStatus(string(rep.Status))
	h.metrics.ObserveEvaluateLatency(time.Since(start))

	writeJSON(w, http.StatusOK, rep)
}

// GetReport retrieves a validation report by ID.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	reportID := chi.URLParam(r, "id")

	if reportID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "report id is required",
		})
		return
	}

	rep, err := h.repo.GetReport(ctx, tenantID, reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "report not found",
			})
			return
		}
		slog.Error("failed to get report", "id", reportID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get report",
		})
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// GetActiveRuleset handles GET /api/v1/rules/active. It reads from the
// repository, not the cache, because this endpoint is the origin other
// nodes refill their caches from.
func (h *Handler) GetActiveRuleset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	key, ok := scopeFromQuery(w, r)
	if !ok {
		return
	}

	rs, err := h.repo.GetActiveRuleset(ctx, tenantID, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no active ruleset for scope " + key.String(),
			})
			return
		}
		slog.Error("failed to get active ruleset", "scope", key.String(), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get active ruleset",
		})
		return
	}

	writeJSON(w, http.StatusOK, rs)
}

// CreateRulesetRequest is the request body for POST /api/v1/rulesets.
type CreateRulesetRequest struct {
	Domain          string        `json:"domain"`
	Jurisdiction    string        `json:"jurisdiction"`
	RulebookVersion string        `json:"rulebookVersion"`
	RulesetVersion  string        `json:"rulesetVersion"`
	Rules           []domain.Rule `json:"rules"`
}

// CreateRuleset stores a new draft ruleset.
func (h *Handler) CreateRuleset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateRulesetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	rs := &domain.Ruleset{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		Domain:          req.Domain,
		Jurisdiction:    req.Jurisdiction,
		RulebookVersion: req.RulebookVersion,
		RulesetVersion:  req.RulesetVersion,
		Status:          domain.StatusDraft,
		Rules:           req.Rules,
	}

	if err := h.repo.SaveRuleset(ctx, tenantID, rs); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to save ruleset", "id", rs.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save ruleset",
		})
		return
	}

	slog.Info("ruleset draft created",
		"id", rs.ID,
		"scope", rs.Key().String(),
		"version", rs.RulesetVersion,
		"rules", len(rs.Rules),
	)
	writeJSON(w, http.StatusCreated, rs)
}

// PublishRuleset handles POST /api/v1/rulesets/{id}/publish: activate the
// draft, archive its predecessor, drop the local cache entry, and emit the
// invalidation event for every other node.
func (h *Handler) PublishRuleset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	rs, err := h.repo.PublishRuleset(ctx, tenantID, id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "ruleset not found",
			})
		case errors.Is(err, repository.ErrNotDraft):
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "ruleset is not a draft",
			})
		default:
			slog.Error("failed to publish ruleset", "id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to publish ruleset",
			})
		}
		return
	}

	h.rulesets.Invalidate(ctx, tenantID, rs.Key())

	if h.bus != nil {
		payload, _ := json.Marshal(domain.RulesetPublishedEvent{
			TenantID:       tenantID,
			Domain:         rs.Domain,
			Jurisdiction:   rs.Jurisdiction,
			RulesetVersion: rs.RulesetVersion,
		})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicRulesetPublished, payload); err != nil {
			slog.Warn("failed to publish ruleset event", "id", id, "error", err)
		}
	}

	slog.Info("ruleset published",
		"id", rs.ID,
		"scope", rs.Key().String(),
		"version", rs.RulesetVersion,
	)
	writeJSON(w, http.StatusOK, rs)
}

// GetRuleset retrieves any ruleset version by ID.
func (h *Handler) GetRuleset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	rs, err := h.repo.GetRuleset(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "ruleset not found",
			})
			return
		}
		slog.Error("failed to get ruleset", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get ruleset",
		})
		return
	}

	writeJSON(w, http.StatusOK, rs)
}

// ListRulesets retrieves every version for a scope, newest first.
func (h *Handler) ListRulesets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	key, ok := scopeFromQuery(w, r)
	if !ok {
		return
	}

	rulesets, err := h.repo.ListRulesets(ctx, tenantID, key)
	if err != nil {
		slog.Error("failed to list rulesets", "scope", key.String(), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rulesets",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rulesets": rulesets,
		"count":    len(rulesets),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func scopeFromQuery(w http.ResponseWriter, r *http.Request) (domain.RulesetKey, bool) {
	key := domain.RulesetKey{
		Domain:       r.URL.Query().Get("domain"),
		Jurisdiction: r.URL.Query().Get("jurisdiction"),
	}
	if key.Domain == "" || key.Jurisdiction == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "domain and jurisdiction query parameters are required",
		})
		return domain.RulesetKey{}, false
	}
	return key, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
