package testutil

import (
	"net/http"

	"concilia/pkg/requestcontext"
)

// WithReviewer marks the request as authenticated by reviewerID, the state
// RequireAuth leaves behind for a valid bearer token.
func WithReviewer(req *http.Request, reviewerID string) *http.Request {
	return req.WithContext(requestcontext.WithReviewerID(req.Context(), reviewerID))
}

// WithRequestID attaches a request ID as the RequestID middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
