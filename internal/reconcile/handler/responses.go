package handler

import (
	"errors"

	"concilia/internal/domain"
	"concilia/internal/reconcile"
	"concilia/internal/validation"
	dErrors "concilia/pkg/domain-errors"
)

type HistoryResponse struct {
	CaseID    string                          `json:"case_id"`
	Revisions []*domain.UnifiedMetadataRecord `json:"revisions"`
}

type ExportResponse struct {
	CaseID      string              `json:"case_id"`
	Allowed     bool                `json:"allowed"`
	Reasons     []string            `json:"reasons"`
	ReviewItems []domain.ReviewItem `json:"review_items"`
}

func FromDecision(caseID string, d validation.Decision) ExportResponse {
	return ExportResponse{
		CaseID:      caseID,
		Allowed:     d.Allowed,
		Reasons:     d.Reasons,
		ReviewItems: d.Items,
	}
}

type VariantsResponse struct {
	RFC      string              `json:"rfc"`
	Variants []domain.RfcVariant `json:"variants"`
}

type BatchResult struct {
	CaseID           string `json:"case_id"`
	Revision         int    `json:"revision,omitempty"`
	RecordID         string `json:"record_id,omitempty"`
	Valid            bool   `json:"valid"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type BatchResponse struct {
	Results []BatchResult `json:"results"`
	Failed  int           `json:"failed"`
}

// FromResults maps pool results onto the wire. Internal errors keep their
// code but not their description.
func FromResults(results []reconcile.Result) BatchResponse {
	resp := BatchResponse{Results: make([]BatchResult, len(results))}
	for i, res := range results {
		out := BatchResult{CaseID: res.CaseID}
		switch {
		case res.Err != nil:
			resp.Failed++
			code := dErrors.CodeOf(res.Err)
			out.Error = string(code)
			var de *dErrors.Error
			if code != dErrors.CodeInternal && errors.As(res.Err, &de) {
				out.ErrorDescription = de.Message
			}
		case res.Record != nil:
			out.Revision = res.Record.Revision
			out.RecordID = res.Record.ID.String()
			out.Valid = res.Record.Validation.IsValid()
		}
		resp.Results[i] = out
	}
	return resp
}
