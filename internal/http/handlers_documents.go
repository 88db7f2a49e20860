package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"
)

// maxUploadSize bounds document uploads at 20 MiB.
const maxUploadSize = 20 << 20

// handleUpload forwards a document to the extraction endpoint and returns
// any prefill fields it produced.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	docType := core.DocType(r.FormValue("type"))
	if docType == "" {
		docType = core.TypeReceipt
	}
	if !docType.IsValid() {
		writeError(w, http.StatusBadRequest, "type must be invoice or receipt")
		return
	}

	file, header, err := r.FormFile("data")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field 'data'")
		return
	}
	defer file.Close()

	fields, err := s.gateway.Upload(r.Context(), docType, header.Filename, file)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := map[string]any{"type": docType}
	if fields != nil {
		resp["extracted"] = fields
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSave forwards a draft record upstream verbatim.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var record core.RawRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(record) == 0 {
		writeError(w, http.StatusBadRequest, "empty record")
		return
	}

	if err := s.gateway.Save(r.Context(), record); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "saved"})
}

// handleViewDocument proxies an upstream document, forcing inline display
// so browsers render instead of download.
func (s *Server) handleViewDocument(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	doc, err := s.gateway.FetchDocument(r.Context(), url)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer doc.Body.Close()

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "inline")
	if doc.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.ContentLength, 10))
	}
	_, _ = io.Copy(w, doc.Body)
}
