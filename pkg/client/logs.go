package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Entry is one audit log record as returned by the server.
type Entry struct {
	ID        int64   `json:"id"`
	TS        string  `json:"ts"`
	StudentID string  `json:"student_id"`
	Trial     *string `json:"trial"`
	FuncName  string  `json:"func_name"`
	Args      []any   `json:"args"`
	Result    any     `json:"result"`
	Error     *string `json:"error"`
}

// FilterOptions are the distinct filter values present in the log.
type FilterOptions struct {
	Students []string `json:"students"`
	Trials   []string `json:"trials"`
	LogCount int64    `json:"log_count"`
}

// Query selects log entries. Zero values mean no condition.
type Query struct {
	StudentID string
	Trial     string
	FuncName  string
	StartTime time.Time
	EndTime   time.Time
	Order     string // "latest" or "earliest"
	Limit     int
	AfterID   int64
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.StudentID != "" {
		v.Set("student_id", q.StudentID)
	}
	if q.Trial != "" {
		v.Set("trial_name", q.Trial)
	}
	if q.FuncName != "" {
		v.Set("func_name", q.FuncName)
	}
	if !q.StartTime.IsZero() {
		v.Set("start_time", q.StartTime.Format(time.RFC3339))
	}
	if !q.EndTime.IsZero() {
		v.Set("end_time", q.EndTime.Format(time.RFC3339))
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	if q.Limit > 0 {
		v.Set("n", strconv.Itoa(q.Limit))
	}
	if q.AfterID > 0 {
		v.Set("after_id", strconv.FormatInt(q.AfterID, 10))
	}
	return v
}

// LogClient retrieves audit log entries of one experiment.
type LogClient struct {
	baseURL    string
	experiment string
	httpClient *http.Client
}

// NewLogClient creates a log client for the experiment at baseURL.
func NewLogClient(baseURL, experiment string) *LogClient {
	return &LogClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		experiment: experiment,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *LogClient) expURL(suffix string) string {
	return c.baseURL + "/exp/" + c.experiment + suffix
}

// Logs returns one page of entries matching the query.
func (c *LogClient) Logs(ctx context.Context, q Query) ([]Entry, error) {
	u := c.expURL("/logs")
	if qs := q.values().Encode(); qs != "" {
		u += "?" + qs
	}

	var out struct {
		Logs []Entry `json:"logs"`
	}
	cc := Client{baseURL: c.baseURL, experiment: c.experiment, httpClient: c.httpClient}
	if err := cc.doJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

// Options returns the distinct filter values present in the log.
func (c *LogClient) Options(ctx context.Context) (*FilterOptions, error) {
	var out FilterOptions
	cc := Client{baseURL: c.baseURL, experiment: c.experiment, httpClient: c.httpClient}
	if err := cc.doJSON(ctx, http.MethodGet, c.expURL("/log-options"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AllLogs pages through every entry matching the query, advancing the
// cursor past each page and stopping when a short page signals the end.
func (c *LogClient) AllLogs(ctx context.Context, q Query, pageSize int) ([]Entry, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	q.Limit = pageSize
	q.AfterID = 0

	var all []Entry
	for {
		page, err := c.Logs(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		q.AfterID = page[len(page)-1].ID
	}
}
