package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"concilia/internal/domain"
	"concilia/internal/reconcile"
	"concilia/internal/validation"
	"concilia/pkg/platform/httputil"
	"concilia/pkg/requestcontext"
)

// Service is the reconciliation API as the handler sees it.
type Service interface {
	Reconcile(ctx context.Context, in reconcile.CaseInput) (*domain.UnifiedMetadataRecord, error)
	Latest(ctx context.Context, caseID string) (*domain.UnifiedMetadataRecord, error)
	History(ctx context.Context, caseID string) ([]*domain.UnifiedMetadataRecord, error)
	Export(ctx context.Context, caseID string) (validation.Decision, error)
	Status(ctx context.Context, caseID string) (domain.SLAStatus, error)
	ExtendDeadline(ctx context.Context, caseID string, additionalDays int, reason string) (domain.SLAStatus, error)
	CloseCase(ctx context.Context, caseID string) (domain.SLAStatus, error)
	FindVariants(ctx context.Context, rfc string) ([]domain.RfcVariant, error)
}

// BatchRunner reconciles many cases with bounded parallelism.
type BatchRunner interface {
	Run(ctx context.Context, inputs []reconcile.CaseInput) []reconcile.Result
}

// Handler wires case endpoints to the reconciliation service.
type Handler struct {
	service Service
	batch   BatchRunner
	logger  *slog.Logger
}

func New(service Service, batch BatchRunner, logger *slog.Logger) *Handler {
	return &Handler{service: service, batch: batch, logger: logger}
}

// Register mounts the endpoints. requireAuth guards the reviewer-only SLA
// transitions.
func (h *Handler) Register(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/cases/{caseID}", func(r chi.Router) {
		r.Post("/reconcile", h.HandleReconcile)
		r.Get("/record", h.HandleLatest)
		r.Get("/records", h.HandleHistory)
		r.Get("/export", h.HandleExport)
		r.Get("/sla", h.HandleStatus)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/sla/extend", h.HandleExtend)
			r.Post("/close", h.HandleClose)
		})
	})
	r.Post("/batch/reconcile", h.HandleBatch)
	r.Get("/identities/variants", h.HandleVariants)
}

// HandleReconcile handles POST /cases/{caseID}/reconcile.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()
	caseID := chi.URLParam(r, "caseID")

	req, ok := httputil.DecodeAndPrepare[ReconcileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.Reconcile(ctx, req.ToInput(caseID))
	if err != nil {
		h.logger.ErrorContext(ctx, "reconciliation failed",
			"request_id", requestID,
			"case_id", caseID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "reconcile request served",
		"request_id", requestID,
		"case_id", caseID,
		"revision", record.Revision,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleBatch handles POST /batch/reconcile. Cases fail independently; the
// response carries one result per input in input order.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[BatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resp := FromResults(h.batch.Run(ctx, req.Cases))
	h.logger.InfoContext(ctx, "batch reconcile served",
		"request_id", requestID,
		"cases", len(req.Cases),
		"failed", resp.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleLatest handles GET /cases/{caseID}/record.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Latest(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleHistory handles GET /cases/{caseID}/records.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	records, err := h.service.History(r.Context(), caseID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{CaseID: caseID, Revisions: records})
}

// HandleExport handles GET /cases/{caseID}/export. A blocked export is a
// successful answer, not an error.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	decision, err := h.service.Export(r.Context(), caseID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDecision(caseID, decision))
}

// HandleStatus handles GET /cases/{caseID}/sla.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleExtend handles POST /cases/{caseID}/sla/extend.
func (h *Handler) HandleExtend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caseID := chi.URLParam(r, "caseID")

	req, ok := httputil.DecodeAndPrepare[ExtendRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	status, err := h.service.ExtendDeadline(ctx, caseID, req.AdditionalDays, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "deadline extension rejected",
			"request_id", requestID,
			"case_id", caseID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleClose handles POST /cases/{caseID}/close.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "caseID")
	status, err := h.service.CloseCase(ctx, caseID)
	if err != nil {
		h.logger.WarnContext(ctx, "case close rejected",
			"request_id", requestcontext.RequestID(ctx),
			"case_id", caseID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleVariants handles GET /identities/variants?rfc=.
func (h *Handler) HandleVariants(w http.ResponseWriter, r *http.Request) {
	rfc := r.URL.Query().Get("rfc")
	variants, err := h.service.FindVariants(r.Context(), rfc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VariantsResponse{RFC: rfc, Variants: variants})
}
