package handler

import (
	"fmt"
	"strings"

	"concilia/internal/reconcile"
	dErrors "concilia/pkg/domain-errors"
)

const (
	maxSources    = 16
	maxDirectives = 32
	maxOverrides  = 64
	maxReasonLen  = 500
	maxExtendDays = 60
	maxBatchCases = 100
)

// ReconcileRequest is the body of POST /cases/{caseID}/reconcile.
type ReconcileRequest struct {
	Sources    []reconcile.SourceDocument `json:"sources"`
	Directives []string                   `json:"directives,omitempty"`
	Overrides  []reconcile.OverrideValue  `json:"overrides,omitempty"`
}

// Validate implements httputil.Validatable. Shape only; the case itself is
// validated by the service.
func (r *ReconcileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Sources) > maxSources {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d sources per case", maxSources))
	}
	if len(r.Directives) > maxDirectives {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d directives per case", maxDirectives))
	}
	if len(r.Overrides) > maxOverrides {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d overrides per case", maxOverrides))
	}
	return nil
}

func (r *ReconcileRequest) ToInput(caseID string) reconcile.CaseInput {
	return reconcile.CaseInput{
		CaseID:     caseID,
		Sources:    r.Sources,
		Directives: r.Directives,
		Overrides:  r.Overrides,
	}
}

// ExtendRequest is the body of POST /cases/{caseID}/sla/extend.
type ExtendRequest struct {
	AdditionalDays int    `json:"additional_days"`
	Reason         string `json:"reason"`
}

func (r *ExtendRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.AdditionalDays <= 0 || r.AdditionalDays > maxExtendDays {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("additional_days must be between 1 and %d", maxExtendDays))
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > maxReasonLen {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("reason must be at most %d characters", maxReasonLen))
	}
	return nil
}

// BatchRequest is the body of POST /batch/reconcile.
type BatchRequest struct {
	Cases []reconcile.CaseInput `json:"cases"`
}

func (r *BatchRequest) Validate() error {
	if r == nil || len(r.Cases) == 0 {
		return dErrors.New(dErrors.CodeValidation, "cases is required")
	}
	if len(r.Cases) > maxBatchCases {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d cases per batch", maxBatchCases))
	}
	for i, c := range r.Cases {
		if len(c.Sources) > maxSources {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("cases[%d]: at most %d sources per case", i, maxSources))
		}
	}
	return nil
}
