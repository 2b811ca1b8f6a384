// Package handlers exposes the HTTP API: RPC dispatch, log queries, admin
// student management and admin session auth, all scoped per experiment.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NeveIsa/LEAP2/pkg/apperr"
)

// writeError maps an error to its HTTP status and the {"detail": ...}
// payload shape.
func writeError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		c.JSON(appErr.Kind.HTTPStatus(), gin.H{"detail": appErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
}
