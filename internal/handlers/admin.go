package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NeveIsa/LEAP2/internal/experiment"
	"github.com/NeveIsa/LEAP2/internal/rpc"
	"github.com/NeveIsa/LEAP2/internal/storage"
	"github.com/NeveIsa/LEAP2/pkg/apperr"
	"github.com/NeveIsa/LEAP2/pkg/logger"
)

// AdminHandler handles session-gated experiment administration
type AdminHandler struct {
	experiments *experiment.Manager
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(experiments *experiment.Manager) *AdminHandler {
	return &AdminHandler{experiments: experiments}
}

// AddStudentRequest represents a student registration request
type AddStudentRequest struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// DeleteStudentRequest identifies the student to remove
type DeleteStudentRequest struct {
	StudentID string `json:"student_id"`
}

// AddStudent registers a student in the experiment
func (h *AdminHandler) AddStudent(c *gin.Context) {
	exp, err := h.experiments.Get(c.Param("experiment"))
	if err != nil {
		writeError(c, err)
		return
	}

	var req AddStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("Invalid request body: %v", err))
		return
	}
	if !rpc.ValidStudentID(req.StudentID) {
		writeError(c, apperr.Validation("Invalid student_id: '%s'", req.StudentID))
		return
	}
	if req.Name == "" {
		writeError(c, apperr.Validation("name is required"))
		return
	}

	student := &storage.Student{StudentID: req.StudentID, Name: req.Name, Email: req.Email}
	if err := exp.Store.AddStudent(c.Request.Context(), student); err != nil {
		writeError(c, err)
		return
	}

	logger.Info("student registered", "experiment", exp.Name, "student_id", req.StudentID)
	c.JSON(http.StatusOK, student)
}

// ListStudents returns all registered students
func (h *AdminHandler) ListStudents(c *gin.Context) {
	exp, err := h.experiments.Get(c.Param("experiment"))
	if err != nil {
		writeError(c, err)
		return
	}

	students, err := exp.Store.ListStudents(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if students == nil {
		students = []*storage.Student{}
	}

	c.JSON(http.StatusOK, gin.H{"students": students})
}

// DeleteStudent removes a student and every log entry they produced
func (h *AdminHandler) DeleteStudent(c *gin.Context) {
	exp, err := h.experiments.Get(c.Param("experiment"))
	if err != nil {
		writeError(c, err)
		return
	}

	var req DeleteStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("Invalid request body: %v", err))
		return
	}

	if err := exp.Store.DeleteStudent(c.Request.Context(), req.StudentID); err != nil {
		writeError(c, err)
		return
	}

	logger.Info("student deleted", "experiment", exp.Name, "student_id", req.StudentID)
	c.JSON(http.StatusOK, gin.H{"deleted": req.StudentID})
}

// ReloadFunctions rebuilds the experiment's function snapshot
func (h *AdminHandler) ReloadFunctions(c *gin.Context) {
	exp, err := h.experiments.Get(c.Param("experiment"))
	if err != nil {
		writeError(c, err)
		return
	}

	n, err := exp.Registry.Reload()
	if err != nil {
		writeError(c, err)
		return
	}

	logger.Info("functions reloaded", "experiment", exp.Name, "count", n)
	c.JSON(http.StatusOK, gin.H{"functions_loaded": n})
}
