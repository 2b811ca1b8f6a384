package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NeveIsa/LEAP2/internal/experiment"
	"github.com/NeveIsa/LEAP2/internal/rpc"
	"github.com/NeveIsa/LEAP2/pkg/apperr"
)

// RPCHandler handles function call and discovery endpoints
type RPCHandler struct {
	experiments *experiment.Manager
}

// NewRPCHandler creates a new RPCHandler
func NewRPCHandler(experiments *experiment.Manager) *RPCHandler {
	return &RPCHandler{experiments: experiments}
}

// Call executes one RPC call within the experiment
func (h *RPCHandler) Call(c *gin.Context) {
	exp, err := h.experiments.Get(c.Param("experiment"))
	if err != nil {
		writeError(c, err)
		return
	}

	var req rpc.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("Invalid request body: %v", err))
		return
	}

	result, err := exp.Dispatcher.Dispatch(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// Functions lists the experiment's callable functions with signatures
func (h *RPCHandler) Functions(c *gin.Context) {
	exp, err := h.experiments.Get(c.Param("experiment"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, exp.Registry.Snapshot().Functions())
}

// IsRegistered reports whether a student id is registered in the experiment
func (h *RPCHandler) IsRegistered(c *gin.Context) {
	exp, err := h.experiments.Get(c.Param("experiment"))
	if err != nil {
		writeError(c, err)
		return
	}

	studentID := c.Query("student_id")
	if !rpc.ValidStudentID(studentID) {
		writeError(c, apperr.Validation("Invalid student_id: '%s'", studentID))
		return
	}

	registered, err := exp.Store.IsRegistered(c.Request.Context(), studentID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"registered": registered})
}
