package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/agent-evo/internal/store"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

type runView struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Total          int       `json:"total"`
	Passed         int       `json:"passed"`
	Failed         int       `json:"failed"`
	Errors         int       `json:"errors"`
	PassRate       float64   `json:"pass_rate"`
	ReleaseBlocked bool      `json:"release_blocked"`
	Optimized      bool      `json:"optimized"`
}

type gateView struct {
	RunID          string              `json:"run_id"`
	FinishedAt     time.Time           `json:"finished_at"`
	PassRate       float64             `json:"pass_rate"`
	ReleaseBlocked bool                `json:"release_blocked"`
	BlockingTags   []string            `json:"blocking_tags,omitempty"`
	FailuresByTag  map[string][]string `json:"failures_by_tag,omitempty"`
}

func toRunView(rec *store.RunRecord) runView {
	return runView{
		ID:             rec.ID,
		StartedAt:      rec.StartedAt,
		FinishedAt:     rec.FinishedAt,
		Total:          rec.Total,
		Passed:         rec.Passed,
		Failed:         rec.Failed,
		Errors:         rec.Errors,
		PassRate:       rec.PassRate,
		ReleaseBlocked: rec.ReleaseBlocked,
		Optimized:      rec.Optimized,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.store == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("run history storage is not configured"))
		return
	}

	limit, err := parseLimitParam(c.Query("limit"), 50)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	filter := store.RunFilter{Limit: limit}
	if filter.Since, err = parseTimeParam(c.Query("since")); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if filter.Until, err = parseTimeParam(c.Query("until")); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	recs, err := s.store.ListRuns(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	views := make([]runView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, toRunView(rec))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleGetRun(c *gin.Context) {
	rec, ok := s.lookupRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toRunView(rec))
}

func (s *Server) handleGetRunReport(c *gin.Context) {
	rec, ok := s.lookupRun(c)
	if !ok {
		return
	}
	if rec.Report == nil {
		respondError(c, http.StatusNotFound, fmt.Errorf("run %q has no stored report", rec.ID))
		return
	}
	c.JSON(http.StatusOK, rec.Report)
}

func (s *Server) handleGate(c *gin.Context) {
	if s.store == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("run history storage is not configured"))
		return
	}

	recs, err := s.store.ListRuns(c.Request.Context(), store.RunFilter{Limit: 1})
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if len(recs) == 0 {
		respondError(c, http.StatusNotFound, errors.New("no evaluation runs recorded"))
		return
	}

	rec, err := s.store.GetRun(c.Request.Context(), recs[0].ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	view := gateView{
		RunID:          rec.ID,
		FinishedAt:     rec.FinishedAt,
		PassRate:       rec.PassRate,
		ReleaseBlocked: rec.ReleaseBlocked,
	}
	if rec.Report != nil {
		view.BlockingTags = rec.Report.BlockingTags
		view.FailuresByTag = rec.Report.FailuresByTag
	}

	status := http.StatusOK
	if view.ReleaseBlocked {
		status = http.StatusConflict
	}
	c.JSON(status, view)
}

func (s *Server) handleListCases(c *gin.Context) {
	pattern := "./tests/*.yaml"
	if s.config != nil && strings.TrimSpace(s.config.TestCases) != "" {
		pattern = s.config.TestCases
	}

	suites, err := testcase.LoadGlob(pattern)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	tags := splitCSV(c.Query("tags"))
	tier := testcase.Tier(strings.TrimSpace(c.Query("tier")))
	cases := testcase.Filter(testcase.Flatten(suites), tags, tier)

	c.JSON(http.StatusOK, cases)
}

func (s *Server) lookupRun(c *gin.Context) (*store.RunRecord, bool) {
	if s.store == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("run history storage is not configured"))
		return nil, false
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing run id"))
		return nil, false
	}

	rec, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			respondError(c, http.StatusNotFound, err)
			return nil, false
		}
		respondError(c, http.StatusInternalServerError, err)
		return nil, false
	}
	return rec, true
}

func respondError(c *gin.Context, status int, err error) {
	if err == nil {
		c.Status(status)
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseLimitParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q, want RFC3339", raw)
	}
	return t, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
