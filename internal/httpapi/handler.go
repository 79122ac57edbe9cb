// Package httpapi serves rosters, profiles and exports as JSON over gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"badgewatch/internal/aggregator"
	"badgewatch/internal/export"
	"badgewatch/internal/filter"
	"badgewatch/internal/models"
	"badgewatch/internal/synth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RosterService read side of the aggregator service
type RosterService interface {
	Dataset() synth.Dataset
	Months() []string
	Roster(ctx context.Context, monthKey string) ([]models.MonthlyPersonSummary, bool, error)
}

// Handler HTTP handlers
type Handler struct {
	Service RosterService
	Logger  *zap.Logger
}

// PersonMonthDetail one roster row with its explanation
type PersonMonthDetail struct {
	Summary           models.MonthlyPersonSummary `json:"summary"`
	Status            aggregator.Status           `json:"status"`
	Drivers           []aggregator.Driver         `json:"drivers"`
	AnomalyPercentile *int                        `json:"anomalyPercentile"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetMonths(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"months": h.Service.Months()})
}

// roster loads the month roster and writes the error response itself
func (h *Handler) roster(c *gin.Context) ([]models.MonthlyPersonSummary, bool, bool) {
	monthKey := c.Param("month")
	summaries, hit, err := h.Service.Roster(c.Request.Context(), monthKey)
	if err != nil {
		h.writeError(c, err)
		return nil, false, false
	}
	return summaries, hit, true
}

func (h *Handler) GetRoster(c *gin.Context) {
	summaries, hit, ok := h.roster(c)
	if !ok {
		return
	}
	c.Header("X-Cache", cacheHeader(hit))
	c.JSON(http.StatusOK, gin.H{
		"monthKey": c.Param("month"),
		"people":   summaries,
	})
}

func cacheHeader(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// personRow finds the person in the roster; 404 when the person is unknown
func (h *Handler) personRow(c *gin.Context, summaries []models.MonthlyPersonSummary) (models.MonthlyPersonSummary, bool) {
	row, err := aggregator.FindSummary(summaries, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return models.MonthlyPersonSummary{}, false
	}
	return row, true
}

func (h *Handler) GetPersonMonth(c *gin.Context) {
	summaries, hit, ok := h.roster(c)
	if !ok {
		return
	}
	row, ok := h.personRow(c, summaries)
	if !ok {
		return
	}

	detail := PersonMonthDetail{
		Summary: row,
		Status:  aggregator.MonthlyStatus(row),
		Drivers: aggregator.ExplainDrivers(row, aggregator.BuildPeerBaseline(summaries)),
	}
	if rank, ok := aggregator.AnomalyPercentile(summaries, row.PersonID); ok {
		detail.AnomalyPercentile = &rank
	}

	c.Header("X-Cache", cacheHeader(hit))
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) GetPersonMonthDenials(c *gin.Context) {
	summaries, _, ok := h.roster(c)
	if !ok {
		return
	}
	row, ok := h.personRow(c, summaries)
	if !ok {
		return
	}
	events := h.Service.Dataset().EventsFor(row.PersonID)
	c.JSON(http.StatusOK, aggregator.BuildMonthlyDenialBreakdown(row, events))
}

func (h *Handler) ExportRoster(c *gin.Context) {
	summaries, _, ok := h.roster(c)
	if !ok {
		return
	}
	monthKey := c.Param("month")
	data, err := export.MonthlyRosterWorkbook(monthKey, summaries)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="badgewatch-roster-%s.xlsx"`, monthKey))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *Handler) GetProfiles(c *gin.Context) {
	ds := h.Service.Dataset()
	state, err := filtersFromQuery(c, ds.Anchor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, aggregator.BuildProfiles(ds.People, ds.Events, state))
}

func (h *Handler) GetPersonProfile(c *gin.Context) {
	ds := h.Service.Dataset()
	profile, err := aggregator.ProfileForPerson(c.Param("id"), ds.People, ds.Events, ds.Anchor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile": profile,
		"denials": aggregator.BuildDenialBreakdown(profile),
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, aggregator.ErrInvalidMonthKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, aggregator.ErrPersonNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.Logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// filtersFromQuery starts from the default window ending on anchor and
// applies the query parameters on top
func filtersFromQuery(c *gin.Context, anchor time.Time) (filter.FilterState, error) {
	state := filter.DefaultFilters(anchor)

	if tz := c.Query("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return state, fmt.Errorf("invalid tz: %w", err)
		}
		state.Location = loc
	}
	if v, ok := c.GetQuery("start"); ok {
		state.DateRange.Start = v
		state.DateRange.Label = ""
	}
	if v, ok := c.GetQuery("end"); ok {
		state.DateRange.End = v
		state.DateRange.Label = ""
	}
	if v := c.Query("label"); v != "" {
		state.DateRange.Label = v
	}

	state.Locations = splitList(c.QueryArray("location"))
	for _, f := range splitList(c.QueryArray("flag")) {
		state.RequiredFlags = append(state.RequiredFlags, models.Flag(f))
	}
	state.DeviceIDQuery = c.Query("device")
	state.PersonQuery = c.Query("person")

	var err error
	if state.IncludeApproved, err = queryBool(c, "approved", true); err != nil {
		return state, err
	}
	if state.IncludeDenied, err = queryBool(c, "denied", true); err != nil {
		return state, err
	}
	if state.AfterHoursOnly, err = queryBool(c, "after_hours_only", false); err != nil {
		return state, err
	}
	if state.FlaggedOnly, err = queryBool(c, "flagged_only", false); err != nil {
		return state, err
	}
	if state.IncludeZeroEvents, err = queryBool(c, "include_zero", false); err != nil {
		return state, err
	}
	if state.AnomalyRange.Min, err = queryFloat(c, "min", 0); err != nil {
		return state, err
	}
	if state.AnomalyRange.Max, err = queryFloat(c, "max", 100); err != nil {
		return state, err
	}
	return state, nil
}

// splitList accepts both repeated and comma separated values
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryBool(c *gin.Context, key string, def bool) (bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

func queryFloat(c *gin.Context, key string, def float64) (float64, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return def, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}
