package server

import (
	"net/http"

	apperrors "github.com/cartolens/cartolens/internal/errors"
)

// HandleError writes err as the standard JSON error body.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
