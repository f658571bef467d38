package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/ledger"
)

// AuditLister is the minimal interface needed to read the audit ledger.
type AuditLister interface {
	ListRecent(ctx context.Context, f ledger.Filter) ([]domain.AuditEvent, error)
}

// HandleListAudit returns recent audit events, newest first. Query
// parameters limit, actor, action and reservation_id narrow the result.
func HandleListAudit(svc AuditLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ledger.Filter{
			Actor:         q.Get("actor"),
			ReservationID: q.Get("reservation_id"),
		}
		if raw := q.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				writeError(w, http.StatusBadRequest, codeInvalidLimit, "limit must be a positive integer")
				return
			}
			filter.Limit = limit
		}
		if raw := q.Get("action"); raw != "" {
			action := domain.Action(raw)
			if !action.Valid() {
				writeError(w, http.StatusBadRequest, codeInvalidAction, "unknown action")
				return
			}
			filter.Action = action
		}

		events, err := svc.ListRecent(r.Context(), filter)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := make([]auditEventResponse, 0, len(events))
		for _, evt := range events {
			resp = append(resp, toAuditEventResponse(evt))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type auditEventResponse struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	Actor         string         `json:"actor"`
	Action        string         `json:"action"`
	Status        string         `json:"status"`
	ReservationID string         `json:"reservation_id,omitempty"`
	AmountMinor   *int64         `json:"amount_minor,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	Vendor        string         `json:"vendor,omitempty"`
	Reasons       []string       `json:"reasons"`
	Details       map[string]any `json:"details,omitempty"`
}

func toAuditEventResponse(evt domain.AuditEvent) auditEventResponse {
	return auditEventResponse{
		ID:            evt.ID,
		CreatedAt:     evt.CreatedAt,
		Actor:         evt.Actor,
		Action:        string(evt.Action),
		Status:        string(evt.Status),
		ReservationID: evt.ReservationID,
		AmountMinor:   evt.AmountMinor,
		Currency:      evt.Currency,
		Vendor:        evt.Vendor,
		Reasons:       nonNil(evt.Reasons),
		Details:       evt.Details,
	}
}
