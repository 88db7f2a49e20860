package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/stats"
)

// handleKPIs serves the headline numbers, optionally windowed by from/to.
func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := "kpis?" + q.Encode()
	if body, ok := s.statsCache.Get(key); ok {
		writeJSONBytes(w, http.StatusOK, body)
		return
	}

	var start, end *time.Time
	if fromStr := q.Get("from"); fromStr != "" {
		from, err := time.Parse(core.ISODate, fromStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		start = &from
	}
	if toStr := q.Get("to"); toStr != "" {
		to, err := time.Parse(core.ISODate, toStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		end = &to
	}

	kpi := stats.KPIs(s.store.Snapshot(), start, end)
	s.respondCached(w, key, kpi)
}

// handleMonthlySeries serves the gap-free month buckets for the chart.
// range=ytd covers the whole current year so the chart axis always shows
// twelve months; range=l12m covers the trailing twelve months.
func (s *Server) handleMonthlySeries(w http.ResponseWriter, r *http.Request) {
	rangeName := r.URL.Query().Get("range")
	if rangeName == "" {
		rangeName = "ytd"
	}

	key := "monthly?range=" + rangeName
	if body, ok := s.statsCache.Get(key); ok {
		writeJSONBytes(w, http.StatusOK, body)
		return
	}

	now := time.Now().UTC()
	var start, end time.Time
	switch rangeName {
	case "ytd":
		start = stats.StartOfYear(now)
		end = stats.EndOfYear(now)
	case "l12m":
		start = stats.StartOfMonth(now.AddDate(0, -11, 0))
		end = stats.EndOfMonth(now)
	default:
		writeError(w, http.StatusBadRequest, "range must be ytd or l12m")
		return
	}

	series := stats.MonthlySeries(s.store.Snapshot(), start, end)
	s.respondCached(w, key, series)
}

// handleCategoryBreakdown serves the per-month category matrix for one
// year.
func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	year := time.Now().Year()
	if yearStr := r.URL.Query().Get("year"); yearStr != "" {
		y, err := strconv.Atoi(yearStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = y
	}

	key := "categories?year=" + strconv.Itoa(year)
	if body, ok := s.statsCache.Get(key); ok {
		writeJSONBytes(w, http.StatusOK, body)
		return
	}

	breakdown := stats.CategoryBreakdown(s.store.Snapshot(), year)
	s.respondCached(w, key, breakdown)
}

// respondCached serializes once, caches the bytes and sends them.
func (s *Server) respondCached(w http.ResponseWriter, key string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode response")
		return
	}
	body = append(body, '\n')
	s.statsCache.Set(key, body)
	writeJSONBytes(w, http.StatusOK, body)
}
