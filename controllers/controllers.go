package controllers

import (
	"errors"
	"net/http"

	"civicgrid-be/engine"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	lifecycle *engine.Engine
	logger    *zap.SugaredLogger
)

// Init wires the lifecycle engine and logger into the handler package.
// Must be called once before the router starts serving.
func Init(e *engine.Engine, log *zap.SugaredLogger) {
	lifecycle = e
	logger = log
}

// respondEngineError maps engine error kinds onto HTTP responses:
// validation -> 400, conflict -> 409 with a reason code, missing issue ->
// 404, store failure -> 503 with a retryable hint.
func respondEngineError(c *gin.Context, err error) {
	var (
		vErr *engine.ValidationError
		cErr *engine.ConflictError
		dErr *engine.DependencyError
	)

	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
	case errors.As(err, &cErr):
		c.JSON(http.StatusConflict, gin.H{"error": cErr.Reason, "code": cErr.Code})
	case errors.As(err, &dErr):
		if errors.Is(dErr, engine.ErrIssueNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
			return
		}
		logger.Warnw("store dependency failed", "op", dErr.Op, "error", dErr.Err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage temporarily unavailable", "retryable": dErr.Retryable})
	default:
		logger.Errorw("unexpected handler error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
	}
}
