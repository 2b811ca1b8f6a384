package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NeveIsa/LEAP2/internal/experiment"
)

// ExperimentHandler handles experiment listing, metadata and health
type ExperimentHandler struct {
	experiments *experiment.Manager
}

// NewExperimentHandler creates a new ExperimentHandler
func NewExperimentHandler(experiments *experiment.Manager) *ExperimentHandler {
	return &ExperimentHandler{experiments: experiments}
}

// List returns metadata for every loaded experiment
func (h *ExperimentHandler) List(c *gin.Context) {
	exps := h.experiments.List()
	out := make([]experiment.Metadata, 0, len(exps))
	for _, exp := range exps {
		out = append(out, exp.Metadata(c.Request.Context()))
	}
	c.JSON(http.StatusOK, gin.H{"experiments": out})
}

// Health reports server liveness
func (h *ExperimentHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"experiments": len(h.experiments.List()),
	})
}

// Readme returns the experiment's parsed README: frontmatter plus body
func (h *ExperimentHandler) Readme(c *gin.Context) {
	exp, err := h.experiments.Get(c.Param("experiment"))
	if err != nil {
		writeError(c, err)
		return
	}

	fm, body := experiment.ParseFrontmatter(exp.ReadmePath())
	c.JSON(http.StatusOK, gin.H{"frontmatter": fm, "body": body})
}
