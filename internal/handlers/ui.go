package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/NeveIsa/LEAP2/internal/experiment"
)

// UIHandler serves per-experiment static UI assets
type UIHandler struct {
	experiments       *experiment.Manager
	defaultExperiment string
}

// NewUIHandler creates a new UIHandler
func NewUIHandler(experiments *experiment.Manager, defaultExperiment string) *UIHandler {
	return &UIHandler{experiments: experiments, defaultExperiment: defaultExperiment}
}

// Serve returns a file from the experiment's ui directory. The bare ui/
// path serves the frontmatter entry point.
func (h *UIHandler) Serve(c *gin.Context) {
	exp, err := h.experiments.Get(c.Param("experiment"))
	if err != nil {
		writeError(c, err)
		return
	}

	rel := strings.TrimPrefix(c.Param("filepath"), "/")
	if rel == "" {
		rel = exp.Frontmatter.EntryPoint
	}
	// Clean against the root so ../ cannot escape the ui directory.
	c.File(filepath.Join(exp.UIDir(), filepath.Clean("/"+rel)))
}

// Root redirects to the default experiment's UI. Falls back to the first
// experiment alphabetically when no default is configured.
func (h *UIHandler) Root(c *gin.Context) {
	name := h.defaultExperiment
	if name == "" {
		if exps := h.experiments.List(); len(exps) > 0 {
			name = exps[0].Name
		}
	}
	if name == "" {
		c.JSON(http.StatusNotFound, gin.H{"detail": "No experiments available"})
		return
	}
	c.Redirect(http.StatusFound, "/exp/"+name+"/ui/")
}
