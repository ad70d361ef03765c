// Package httpapi exposes the decision engine over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/fusion"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/state"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/vault"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// Engine is the part of fusion.Engine the handlers use.
type Engine interface {
	Decide(ctx context.Context, req payment.Request, vault payment.VaultStatus) fusion.Decision
	RecordOutcome(ctx context.Context, decisionID string, outcome payment.Outcome) error
	Weights() map[string]float64
	Performance() state.Performance
	VersionID() string
}

// #region handler
// Handler wires the decision endpoints to the engine.
type Handler struct {
	engine Engine
	vault  vault.Reader
	logger *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithVault lets requests omit the vault snapshot; it is read from r instead.
func WithVault(r vault.Reader) Option {
	return func(h *Handler) {
		h.vault = r
	}
}

// New constructs a handler.
func New(engine Engine, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{engine: engine, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the decision endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/decisions", h.HandleDecide)
	r.Post("/v1/decisions/{id}/outcome", h.HandleOutcome)
	r.Get("/v1/weights", h.HandleWeights)
}

// NewRouter builds the full router: decision endpoints plus /metrics served
// from gatherer.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	h.Register(r)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// #endregion handler

// #region decide
// DecideRequest is the body of POST /v1/decisions. Vault may be omitted when
// the server has a vault reader.
type DecideRequest struct {
	Request payment.Request      `json:"request"`
	Vault   *payment.VaultStatus `json:"vault,omitempty"`
}

// HandleDecide handles POST /v1/decisions. Rejections are still 200: the
// decision itself carries the verdict.
func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var body DecideRequest
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var snap payment.VaultStatus
	switch {
	case body.Vault != nil:
		snap = *body.Vault
	case h.vault != nil:
		s, err := vault.Snapshot(ctx, h.vault, body.Request.Agent, body.Request.Recipient)
		if err != nil {
			h.logger.Warn("vault snapshot failed",
				zap.String("request_id", middleware.GetReqID(ctx)),
				zap.String("agent", body.Request.Agent),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, "vault unavailable")
			return
		}
		snap = s
	default:
		writeError(w, http.StatusBadRequest, "vault snapshot is required")
		return
	}

	d := h.engine.Decide(ctx, body.Request, snap)
	h.logger.Info("decision served",
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.String("decision_id", d.ID),
		zap.Bool("approve", d.Approve),
		zap.Bool("fallback", d.Fallback),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	writeJSON(w, http.StatusOK, d)
}

// #endregion decide

// #region outcome
// HandleOutcome handles POST /v1/decisions/{id}/outcome.
func (h *Handler) HandleOutcome(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var outcome payment.Outcome
	if err := decode(w, r, &outcome); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.engine.RecordOutcome(r.Context(), id, outcome)
	switch {
	case errors.Is(err, fusion.ErrUnknownDecision):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		h.logger.Error("record outcome failed", zap.String("decision_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "record outcome failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// #endregion outcome

// #region weights
// WeightsResponse is the body of GET /v1/weights.
type WeightsResponse struct {
	VersionID   string             `json:"version_id,omitempty"`
	Weights     map[string]float64 `json:"weights"`
	Performance state.Performance  `json:"performance"`
}

// HandleWeights handles GET /v1/weights.
func (h *Handler) HandleWeights(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, WeightsResponse{
		VersionID:   h.engine.VersionID(),
		Weights:     h.engine.Weights(),
		Performance: h.engine.Performance(),
	})
}

// #endregion weights

// #region helpers
type errorResponse struct {
	Error string `json:"error"`
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// #endregion helpers
