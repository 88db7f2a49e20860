package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/query"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/store"
)

type recordsResponse struct {
	Records    []core.Record `json:"records"`
	Total      int           `json:"total"`
	Stale      bool          `json:"stale"`
	FetchError string        `json:"fetchError,omitempty"`
}

// handleListRecords serves the filtered, sorted collection for one tab.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	docType := core.DocType(q.Get("type"))
	if docType == "" {
		docType = core.TypeInvoice
	}
	if !docType.IsValid() {
		writeError(w, http.StatusBadRequest, "type must be invoice or receipt")
		return
	}

	filter := query.Filter{
		Type:  docType,
		Query: q.Get("q"),
	}

	if monthStr := q.Get("month"); monthStr != "" {
		month, err := strconv.Atoi(monthStr)
		if err != nil || month < 1 || month > 12 {
			writeError(w, http.StatusBadRequest, "month must be 1-12")
			return
		}
		year := time.Now().Year()
		if yearStr := q.Get("year"); yearStr != "" {
			year, err = strconv.Atoi(yearStr)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid year")
				return
			}
		}
		ref := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		filter.Month = &ref
	}

	if fromStr := q.Get("from"); fromStr != "" {
		from, err := time.Parse(core.ISODate, fromStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		filter.From = &from
	}
	if toStr := q.Get("to"); toStr != "" {
		to, err := time.Parse(core.ISODate, toStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		filter.To = &to
	}

	var sort *query.Sort
	if key := q.Get("sort"); key != "" {
		sort = &query.Sort{Key: key, Dir: query.ParseDirection(q.Get("dir"))}
	}

	records := query.Apply(s.store.Snapshot(), filter, sort)

	writeJSON(w, http.StatusOK, recordsResponse{
		Records:    records,
		Total:      len(records),
		Stale:      s.store.Stale(),
		FetchError: s.store.FetchError(),
	})
}

type categoryRequest struct {
	Category string `json:"category"`
}

type categoryResponse struct {
	ID         string        `json:"id"`
	Category   core.Category `json:"category"`
	Status     core.Status   `json:"status"`
	SyncStatus string        `json:"syncStatus"`
}

// handleUpdateCategory applies the edit locally and acknowledges before
// the upstream reconciliation finishes.
func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing record id")
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	category := core.ParseCategory(req.Category)

	status, err := s.updater.UpdateCategory(id, category)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, categoryResponse{
		ID:         id,
		Category:   category,
		Status:     status,
		SyncStatus: string(store.SyncSyncing),
	})
}

// handleSyncStatus returns the per-record reconciliation states. Records
// absent from the map are clean.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	states := s.store.SyncStates()
	out := make(map[string]string, len(states))
	for id, state := range states {
		out[id] = string(state)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRefresh triggers a fetch cycle and reports the collection state.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.refresher.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": len(s.store.Snapshot()),
	})
}
