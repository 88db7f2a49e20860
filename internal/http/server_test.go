package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/store"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/webhook"
)

type fakeUpdater struct {
	store *store.Store
	err   error
}

func (f *fakeUpdater) UpdateCategory(id string, category core.Category) (core.Status, error) {
	if f.err != nil {
		return "", f.err
	}
	status, err := f.store.ApplyCategory(id, category)
	if err != nil {
		return "", err
	}
	f.store.SetSyncState(id, store.SyncSyncing)
	return status, nil
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeGateway struct {
	uploadedType core.DocType
	uploadedName string
	uploadedData []byte
	saved        core.RawRecord
	fields       *core.ExtractedFields
	docBody      string
	docType      string
	err          error
}

func (f *fakeGateway) Upload(ctx context.Context, docType core.DocType, filename string, data io.Reader) (*core.ExtractedFields, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.uploadedType = docType
	f.uploadedName = filename
	f.uploadedData, _ = io.ReadAll(data)
	return f.fields, nil
}

func (f *fakeGateway) Save(ctx context.Context, record core.RawRecord) error {
	if f.err != nil {
		return f.err
	}
	f.saved = record
	return nil
}

func (f *fakeGateway) FetchDocument(ctx context.Context, url string) (*webhook.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &webhook.Document{
		Body:        io.NopCloser(strings.NewReader(f.docBody)),
		ContentType: f.docType,
	}, nil
}

func testRecords() []core.Record {
	return []core.Record{
		{ID: "INV-1", Provider: "AWS", Date: "2025-03-01", DisplayAmount: "€45.00", RawAmount: 45,
			Status: core.StatusPending, Type: core.TypeInvoice, Category: core.CategoryElectronics, Currency: "EUR"},
		{ID: "INV-2", Provider: "Coop", Date: "2025-03-10", DisplayAmount: "€120.00", RawAmount: 120,
			Status: core.StatusInTheBooks, Type: core.TypeInvoice, Category: core.CategoryFood, Currency: "EUR"},
		{ID: "RCP-1", Provider: "Kiosk", Date: "2025-02-20", DisplayAmount: "€8.00", RawAmount: 8,
			Status: core.StatusPending, Type: core.TypeReceipt, Category: core.CategoryMiscellaneous, Currency: "EUR"},
	}
}

func newTestServer(t *testing.T) (*Server, *store.Store, *fakeRefresher, *fakeGateway) {
	t.Helper()
	st := store.New()
	st.Replace(testRecords())
	ref := &fakeRefresher{}
	gw := &fakeGateway{}
	s := NewServer(":0", st, &fakeUpdater{store: st}, ref, gw)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s, st, ref, gw
}

func doRequest(s *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil && method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestListRecordsDefaultsToInvoices(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/records", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp recordsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2 invoices", resp.Total)
	}
	for _, r := range resp.Records {
		if r.Type != core.TypeInvoice {
			t.Errorf("record %s type = %q", r.ID, r.Type)
		}
	}
}

func TestListRecordsFilterSortAndSearch(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/records?type=invoice&q=%3E100&sort=amount&dir=desc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp recordsResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Records[0].ID != "INV-2" {
		t.Errorf("records = %+v, want only INV-2", resp.Records)
	}

	rec = doRequest(s, http.MethodGet, "/api/records?type=invoice&sort=amount&dir=desc", nil)
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Records) != 2 || resp.Records[0].ID != "INV-2" {
		t.Errorf("desc amount sort order wrong: %+v", resp.Records)
	}
}

func TestListRecordsBadType(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/records?type=contract", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListRecordsMonthFilter(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/records?type=receipt&month=2&year=2025", nil)
	var resp recordsResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Records[0].ID != "RCP-1" {
		t.Errorf("records = %+v, want only RCP-1", resp.Records)
	}
}

func TestUpdateCategoryAccepted(t *testing.T) {
	s, st, _, _ := newTestServer(t)

	body := strings.NewReader(`{"category":"Food"}`)
	rec := doRequest(s, http.MethodPost, "/api/records/INV-1/category", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp categoryResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != core.StatusCategorized {
		t.Errorf("status = %q, want categorized", resp.Status)
	}
	if resp.SyncStatus != "syncing" {
		t.Errorf("syncStatus = %q", resp.SyncStatus)
	}

	got, _ := st.Get("INV-1")
	if got.Category != core.CategoryFood {
		t.Errorf("store category = %q", got.Category)
	}
}

func TestUpdateCategoryUnknownRecord(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/api/records/nope/category", strings.NewReader(`{"category":"Food"}`))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUpdateCategoryUnknownNameFallsBack(t *testing.T) {
	s, st, _, _ := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/api/records/INV-1/category", strings.NewReader(`{"category":"Gadgets"}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	got, _ := st.Get("INV-1")
	if got.Category != core.CategoryMiscellaneous {
		t.Errorf("category = %q, want Miscellaneous", got.Category)
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	s, st, _, _ := newTestServer(t)
	st.SetSyncState("INV-1", store.SyncError)

	rec := doRequest(s, http.MethodGet, "/api/records/sync-status", nil)
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["INV-1"] != "error" {
		t.Errorf("sync status = %v", resp)
	}
	if _, ok := resp["INV-2"]; ok {
		t.Error("clean record present in sync status map")
	}
}

func TestRefreshEndpoint(t *testing.T) {
	s, _, ref, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ref.calls != 1 {
		t.Errorf("refresher calls = %d", ref.calls)
	}

	ref.err = errors.New("upstream down")
	rec = doRequest(s, http.MethodPost, "/api/refresh", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestKPIsEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/stats/kpis", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var kpi struct {
		TotalSpend   float64 `json:"totalSpend"`
		InvoiceCount int     `json:"invoiceCount"`
		ReceiptCount int     `json:"receiptCount"`
		TotalCount   int     `json:"totalCount"`
	}
	json.Unmarshal(rec.Body.Bytes(), &kpi)
	if kpi.TotalSpend != 173 {
		t.Errorf("totalSpend = %v, want 173", kpi.TotalSpend)
	}
	if kpi.InvoiceCount != 2 || kpi.ReceiptCount != 1 || kpi.TotalCount != 3 {
		t.Errorf("counts = %+v", kpi)
	}
}

func TestMonthlySeriesBadRange(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/stats/monthly?range=all", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCategoryBreakdownEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/stats/categories?year=2025", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var breakdown struct {
		Year int `json:"year"`
		Rows []struct {
			Month int       `json:"month"`
			Total float64   `json:"total"`
		} `json:"rows"`
	}
	json.Unmarshal(rec.Body.Bytes(), &breakdown)
	if breakdown.Year != 2025 {
		t.Errorf("year = %d", breakdown.Year)
	}
	if len(breakdown.Rows) != 12 {
		t.Errorf("rows = %d, want 12", len(breakdown.Rows))
	}
}

func TestStatsCacheFlushedOnStoreChange(t *testing.T) {
	s, st, _, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/stats/kpis", nil)
	var before struct {
		TotalCount int `json:"totalCount"`
	}
	json.Unmarshal(rec.Body.Bytes(), &before)
	if before.TotalCount != 3 {
		t.Fatalf("totalCount = %d", before.TotalCount)
	}

	st.Replace(testRecords()[:1])

	// Invalidation is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec = doRequest(s, http.MethodGet, "/api/stats/kpis", nil)
		var after struct {
			TotalCount int `json:"totalCount"`
		}
		json.Unmarshal(rec.Body.Bytes(), &after)
		if after.TotalCount == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("stats cache never flushed after store change")
}

func TestUploadEndpoint(t *testing.T) {
	s, _, _, gw := newTestServer(t)
	gw.fields = &core.ExtractedFields{Provider: "ACME", Amount: 99.9, Currency: "EUR"}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("type", "invoice")
	part, _ := w.CreateFormFile("data", "scan.pdf")
	part.Write([]byte("%PDF-fake"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if gw.uploadedType != core.TypeInvoice || gw.uploadedName != "scan.pdf" {
		t.Errorf("gateway saw type=%q name=%q", gw.uploadedType, gw.uploadedName)
	}
	if string(gw.uploadedData) != "%PDF-fake" {
		t.Errorf("uploaded data = %q", gw.uploadedData)
	}

	var resp struct {
		Extracted *core.ExtractedFields `json:"extracted"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Extracted == nil || resp.Extracted.Provider != "ACME" {
		t.Errorf("extracted = %+v", resp.Extracted)
	}
}

func TestSaveEndpoint(t *testing.T) {
	s, _, _, gw := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/save", strings.NewReader(`{"provider":"ACME","gross_amount":12.5}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if gw.saved["provider"] != "ACME" {
		t.Errorf("saved = %+v", gw.saved)
	}
}

func TestViewDocumentEndpoint(t *testing.T) {
	s, _, _, gw := newTestServer(t)
	gw.docBody = "%PDF-fake"
	gw.docType = "application/pdf"

	rec := doRequest(s, http.MethodGet, "/api/view-document?url=https%3A%2F%2Ffiles.example%2Fdoc.pdf", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != "inline" {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("Content-Type = %q", got)
	}
	if rec.Body.String() != "%PDF-fake" {
		t.Errorf("body = %q", rec.Body)
	}
}

func TestViewDocumentRequiresURL(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/view-document", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200 after Replace", rec.Code)
	}

	empty := NewServer(":0", store.New(), &fakeUpdater{store: store.New()}, &fakeRefresher{}, &fakeGateway{})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		empty.Shutdown(ctx)
	}()
	rec = doRequest(empty, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz on empty store = %d, want 503", rec.Code)
	}
}

func TestMonthlySeriesYTDCoversFullYear(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/stats/monthly?range=ytd", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var series []struct {
		Year  int    `json:"year"`
		Month int    `json:"month"`
		Label string `json:"label"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &series); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// The chart axis always shows January through December.
	if len(series) != 12 {
		t.Fatalf("buckets = %d, want 12", len(series))
	}
	year := time.Now().UTC().Year()
	for i, b := range series {
		if b.Year != year || b.Month != i+1 {
			t.Errorf("bucket %d = %d-%02d, want %d-%02d", i, b.Year, b.Month, year, i+1)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	// Populate the stats cache and the request counter.
	if rec := doRequest(s, http.MethodGet, "/api/stats/kpis", nil); rec.Code != http.StatusOK {
		t.Fatalf("kpis status = %d", rec.Code)
	}

	rec := doRequest(s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"http_requests_total 2",
		"cache_entries{type=\"stats\"} 1",
		"record_count 3",
		"active_rate_limit_clients",
		"uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q\n%s", want, body)
		}
	}
}
