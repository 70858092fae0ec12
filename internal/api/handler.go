package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/repository"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/settings"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	scorer   *decision.Service
	settings *settings.Store
	registry *rules.Registry
	logger   *slog.Logger
	version  string
	workers  bool
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		scorer:   deps.Scorer,
		settings: deps.Settings,
		registry: deps.Registry,
		logger:   logger,
		version:  deps.Version,
		workers:  deps.Workers,
	}
}

// CheckRequest is the body of POST /check and POST /eligibility.
// BankCode falls back to request.bankCode and is ignored by /eligibility.
type CheckRequest struct {
	BankCode       string          `json:"bankCode,omitempty"`
	Request        *domain.Request `json:"request"`
	UseCommonRules *bool           `json:"useCommonRules,omitempty"`
}

// Check handles POST /check: one request against one bank.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Request == nil {
		writeError(w, http.StatusBadRequest, "request is required")
		return
	}
	code := req.BankCode
	if code == "" {
		code = req.Request.BankCode
	}
	if code == "" {
		writeError(w, http.StatusBadRequest, "bankCode is required")
		return
	}

	eval, err := h.scorer.CheckBank(r.Context(), req.Request, code, req.UseCommonRules)
	if err != nil {
		h.writeScoringError(w, req.Request.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, eval.ToResponse())
}

// Eligibility handles POST /eligibility: one request against every bank.
func (h *Handler) Eligibility(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Request == nil {
		writeError(w, http.StatusBadRequest, "request is required")
		return
	}

	eval, err := h.scorer.CheckAll(r.Context(), req.Request, req.UseCommonRules)
	if err != nil {
		h.writeScoringError(w, req.Request.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, eval.ToResponse())
}

// Submit handles POST /requests: queues a request for the worker.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}
	if !h.workers {
		writeError(w, http.StatusServiceUnavailable, "no scoring worker running")
		return
	}

	var req CheckRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Request == nil {
		writeError(w, http.StatusBadRequest, "request is required")
		return
	}
	if req.Request.ID == "" {
		req.Request.ID = uuid.New().String()
	}

	payload, err := json.Marshal(domain.SubmittedRequest{Request: req.Request, UseCommonRules: req.UseCommonRules})
	if err != nil {
		writeError(w, http.StatusBadRequest, "request cannot be encoded")
		return
	}
	if err := h.bus.Publish(r.Context(), domain.TopicRequestSubmitted, payload); err != nil {
		h.logger.Error("failed to submit request", "request_id", req.Request.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue request")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"requestId": req.Request.ID,
		"status":    "QUEUED",
	})
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	id := chi.URLParam(r, "id")
	eval, err := h.repo.GetEvaluation(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "evaluation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get evaluation", "evaluation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load evaluation")
		return
	}
	writeJSON(w, http.StatusOK, eval.ToResponse())
}

// ListRequestEvaluations returns every evaluation of a request, newest first.
func (h *Handler) ListRequestEvaluations(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	id := chi.URLParam(r, "id")
	evals, err := h.repo.ListEvaluationsByRequest(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list evaluations", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load evaluations")
		return
	}

	out := make([]*domain.EvaluationResponse, 0, len(evals))
	for _, e := range evals {
		out = append(out, e.ToResponse())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"evaluations": out,
		"count":       len(out),
	})
}

// Catalog lists the registered rule classes.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	catalog := h.registry.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": catalog,
		"count": len(catalog),
	})
}

// ValidateRules checks a rule list without storing it.
func (h *Handler) ValidateRules(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	cfgs, err := domain.ParseRuleConfigs(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.settings.ValidateRules(cfgs); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "count": len(cfgs)})
}

// ListBanks returns every bank in the current snapshot.
func (h *Handler) ListBanks(w http.ResponseWriter, r *http.Request) {
	snap := h.settings.Snapshot()
	banks := make([]domain.BankSettings, 0, len(snap.Banks))
	for _, code := range snap.BankCodes() {
		banks = append(banks, snap.Banks[code])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"banks": banks,
		"count": len(banks),
	})
}

// GetBank returns one bank's settings.
func (h *Handler) GetBank(w http.ResponseWriter, r *http.Request) {
	bank, ok := h.settings.Snapshot().Bank(chi.URLParam(r, "code"))
	if !ok {
		writeError(w, http.StatusNotFound, "bank not found")
		return
	}
	writeJSON(w, http.StatusOK, bank)
}

// PutBank creates or replaces a bank's settings. The code in the URL wins
// over the body.
func (h *Handler) PutBank(w http.ResponseWriter, r *http.Request) {
	var bank domain.BankSettings
	if !decodeBody(w, r, &bank) {
		return
	}
	bank.Code = chi.URLParam(r, "code")
	if bank.Rules == nil {
		bank.Rules = []domain.RuleConfig{}
	}

	if err := h.settings.SaveBank(r.Context(), &bank); err != nil {
		h.writeSettingsError(w, err)
		return
	}
	saved, _ := h.settings.Snapshot().Bank(bank.Code)
	writeJSON(w, http.StatusOK, saved)
}

// DeleteBank removes a bank's settings.
func (h *Handler) DeleteBank(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.DeleteBank(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.writeSettingsError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetGlobal returns the global settings.
func (h *Handler) GetGlobal(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Snapshot().Global)
}

// PutGlobal replaces the global settings.
func (h *Handler) PutGlobal(w http.ResponseWriter, r *http.Request) {
	var global domain.GlobalSettings
	if !decodeBody(w, r, &global) {
		return
	}
	if global.CommonRules == nil {
		global.CommonRules = []domain.RuleConfig{}
	}

	if err := h.settings.SaveGlobal(r.Context(), &global); err != nil {
		h.writeSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.settings.Snapshot().Global)
}

// Reload reloads settings from their source.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.Reload(r.Context()); err != nil {
		h.logger.Error("settings reload failed", "error", err)
		h.writeSettingsError(w, err)
		return
	}
	snap := h.settings.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"source":   h.settings.Source().Name(),
		"banks":    len(snap.Banks),
		"loadedAt": snap.LoadedAt,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}
	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(r.Context()) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(r.Context()) })
	}
	if h.bus != nil {
		check("bus", func() error { return h.bus.Ping(r.Context()) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready reports whether settings have been loaded at least once.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	snap := h.settings.Snapshot()
	if snap.LoadedAt.IsZero() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready":    "true",
		"loadedAt": snap.LoadedAt.Format(time.RFC3339),
	})
}

func (h *Handler) writeScoringError(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, settings.ErrUnknownBank):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		// Only strict mode surfaces rule defects here.
		h.logger.Error("scoring failed", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeSettingsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settings.ErrUnknownBank), errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, settings.ErrReadOnly):
		writeError(w, http.StatusConflict, err.Error())
	case isConfigError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("settings update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "settings update failed")
	}
}

func isConfigError(err error) bool {
	for _, target := range []error{
		rules.ErrUnknownRule,
		rules.ErrInvalidParams,
		rules.ErrInvalidOperator,
		rules.ErrRecursionLimit,
		repository.ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
