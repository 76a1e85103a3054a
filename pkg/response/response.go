// Package response centralizes how the HTTP surface renders success and
// error bodies, the way ksred-klear-api/pkg/response does — except the
// shapes here are flat per §6 (`{error: string}`, not an envelope),
// and Error dispatches on apperror.Kind rather than gorm sentinel
// errors, per §7's status-code mapping.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ironvault/btc-options-engine/internal/apperror"
)

// errorBody is §6/§7's fixed error shape.
type errorBody struct {
	Error string `json:"error"`
}

// OK sends data as the body with 200, unwrapped.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created sends data as the body with 201.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Error dispatches err to the status code §7 assigns its Kind:
// validation/collateral/quantity errors to 400, upstream/IV/storage
// errors to 5xx.
func Error(c *gin.Context, err error) {
	ae, ok := apperror.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch ae.Kind {
	case apperror.KindInvalidInput, apperror.KindInsufficientCollateral, apperror.KindQuantityExceedsLimit:
		status = http.StatusBadRequest
	case apperror.KindUpstreamUnavailable, apperror.KindUpstreamTimeout, apperror.KindIvUnavailable, apperror.KindStorageError:
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, errorBody{Error: ae.Error()})
}

// BadRequest sends a plain validation error not already wrapped as an
// *apperror.Error (e.g. JSON-binding failures).
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: message})
}
