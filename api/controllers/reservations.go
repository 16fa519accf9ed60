package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/inventory-backend/api/responses"
	"github.com/angelmondragon/inventory-backend/api/validators"
	"github.com/angelmondragon/inventory-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/inventory-backend/pkg/errors"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
)

// Reserver places time-boxed holds for an order.
type Reserver interface {
	Reserve(ctx context.Context, orderNumber string, lines []ledger.Line) (bool, error)
}

type reserveRequest struct {
	OrderNumber string        `json:"orderNumber" validate:"required,max=128"`
	Lines       []ledger.Line `json:"lines" validate:"required,min=1,dive"`
}

type reserveResponse struct {
	Reserved bool `json:"reserved"`
}

// Reserve answers {"reserved": false} with 200 when a line lacks stock; holds
// for lines before it are kept.
func Reserve(svc Reserver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		var payload reserveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reserved, err := svc.Reserve(r.Context(), validators.SanitizeString(payload.OrderNumber, 128), payload.Lines)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reserveResponse{Reserved: reserved})
	}
}
