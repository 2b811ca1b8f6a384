package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NeveIsa/LEAP2/internal/experiment"
	"github.com/NeveIsa/LEAP2/internal/storage"
	"github.com/NeveIsa/LEAP2/pkg/apperr"
)

// LogHandler handles log query endpoints
type LogHandler struct {
	experiments *experiment.Manager
}

// NewLogHandler creates a new LogHandler
func NewLogHandler(experiments *experiment.Manager) *LogHandler {
	return &LogHandler{experiments: experiments}
}

// Logs returns log entries matching the query string filters
func (h *LogHandler) Logs(c *gin.Context) {
	exp, err := h.experiments.Get(c.Param("experiment"))
	if err != nil {
		writeError(c, err)
		return
	}

	filter, err := parseFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}

	// A filter on a function name the experiment does not expose is a
	// caller mistake, not an empty result.
	if filter.FuncName != "" {
		if _, lookupErr := exp.Registry.Lookup(filter.FuncName); lookupErr != nil {
			writeError(c, apperr.Validation("Unknown function: '%s'", filter.FuncName))
			return
		}
	}

	entries, err := exp.Store.Query(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if entries == nil {
		entries = []*storage.Entry{}
	}

	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

// LogOptions returns the distinct filter values present in the log
func (h *LogHandler) LogOptions(c *gin.Context) {
	exp, err := h.experiments.Get(c.Param("experiment"))
	if err != nil {
		writeError(c, err)
		return
	}

	opts, err := exp.Store.Options(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, opts)
}

// parseFilter builds a storage.Filter from the request query string.
func parseFilter(c *gin.Context) (storage.Filter, error) {
	f := storage.Filter{
		StudentID: c.Query("student_id"),
		Trial:     c.Query("trial_name"),
		FuncName:  c.Query("func_name"),
	}

	if v := c.Query("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apperr.Validation("Invalid start_time: '%s'", v)
		}
		f.StartTime = t
	}
	if v := c.Query("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apperr.Validation("Invalid end_time: '%s'", v)
		}
		f.EndTime = t
	}
	if v := c.Query("n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, apperr.Validation("Invalid n: '%s'", v)
		}
		if n < 1 {
			n = 1
		}
		f.Limit = n
	}
	if v := c.Query("after_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, apperr.Validation("Invalid after_id: '%s'", v)
		}
		f.AfterID = id
	}
	switch order := c.Query("order"); order {
	case "", string(storage.OrderLatest):
		f.Order = storage.OrderLatest
	case string(storage.OrderEarliest):
		f.Order = storage.OrderEarliest
	default:
		return f, apperr.Validation("Invalid order: '%s'", order)
	}

	return f, nil
}
