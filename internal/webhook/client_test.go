package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"
)

func TestFetchRecords(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    int
		wantErr bool
	}{
		{"array", http.StatusOK, `[{"invoice_nr":"INV-1"},{"invoice_nr":"INV-2"}]`, 2, false},
		{"empty array", http.StatusOK, `[]`, 0, false},
		{"empty body", http.StatusOK, ``, 0, false},
		{"whitespace body", http.StatusOK, "  \n\t ", 0, false},
		{"html error page", http.StatusOK, `<html>oops</html>`, 0, true},
		{"object not array", http.StatusOK, `{"invoice_nr":"INV-1"}`, 0, true},
		{"upstream 500", http.StatusInternalServerError, ``, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("method = %s, want GET", r.Method)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewClient(Config{FetchURL: srv.URL})
			records, err := c.FetchRecords(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchRecords: %v", err)
			}
			if records == nil {
				t.Fatal("records is nil, want empty slice")
			}
			if len(records) != tt.want {
				t.Errorf("len = %d, want %d", len(records), tt.want)
			}
		})
	}
}

func TestUpdateCategoryPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{UpdateURL: srv.URL})
	err := c.UpdateCategory(context.Background(), "INV-7", core.CategoryFood, core.StatusCategorized)
	if err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}

	want := map[string]string{
		"invoice_nr": "INV-7",
		"category":   "Food",
		"label":      "categorized",
		"status":     "categorized",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("payload[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestUpdateCategoryUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{UpdateURL: srv.URL})
	err := c.UpdateCategory(context.Background(), "INV-7", core.CategoryFood, core.StatusCategorized)
	if err == nil {
		t.Error("expected error on 502, got nil")
	}
}

func TestSavePassesBodyThrough(t *testing.T) {
	var got core.RawRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(Config{SaveURL: srv.URL})
	err := c.Save(context.Background(), core.RawRecord{"provider": "ACME", "gross_amount": 12.5})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got["provider"] != "ACME" {
		t.Errorf("provider = %v", got["provider"])
	}
}

func TestUploadMultipartOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if err != nil {
			t.Fatalf("multipart reader: %v", err)
		}

		first, err := mr.NextPart()
		if err != nil {
			t.Fatalf("first part: %v", err)
		}
		if first.FormName() != "type" {
			t.Errorf("first part = %q, want type", first.FormName())
		}
		typ, _ := io.ReadAll(first)
		if string(typ) != "invoice" {
			t.Errorf("type = %q, want invoice", typ)
		}

		second, err := mr.NextPart()
		if err != nil {
			t.Fatalf("second part: %v", err)
		}
		if second.FormName() != "data" {
			t.Errorf("second part = %q, want data", second.FormName())
		}
		if second.FileName() != "scan.pdf" {
			t.Errorf("filename = %q", second.FileName())
		}
		data, _ := io.ReadAll(second)
		if string(data) != "%PDF-fake" {
			t.Errorf("file data = %q", data)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"provider":     "ACME",
			"gross_amount": 99.9,
			"currency":     "EUR",
		})
	}))
	defer srv.Close()

	c := NewClient(Config{UploadURL: srv.URL})
	fields, err := c.Upload(context.Background(), core.TypeInvoice, "scan.pdf", strings.NewReader("%PDF-fake"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if fields == nil {
		t.Fatal("fields is nil")
	}
	if fields.Provider != "ACME" {
		t.Errorf("provider = %q", fields.Provider)
	}
	if fields.Currency != "EUR" {
		t.Errorf("currency = %q", fields.Currency)
	}
}

func TestUploadDefaultsToReceipt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr, _ := r.MultipartReader()
		first, _ := mr.NextPart()
		typ, _ := io.ReadAll(first)
		if string(typ) != "receipt" {
			t.Errorf("type = %q, want receipt", typ)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{UploadURL: srv.URL})
	fields, err := c.Upload(context.Background(), "", "scan.jpg", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if fields != nil {
		t.Errorf("fields = %+v, want nil on empty response", fields)
	}
}

func TestUploadNonJSONAckIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "accepted")
	}))
	defer srv.Close()

	c := NewClient(Config{UploadURL: srv.URL})
	fields, err := c.Upload(context.Background(), core.TypeReceipt, "scan.jpg", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if fields != nil {
		t.Errorf("fields = %+v, want nil", fields)
	}
}

func TestFetchDocumentFollowsLinkDirectly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/doc.pdf" {
			t.Errorf("path = %q, want /files/doc.pdf", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-fake")
	}))
	defer srv.Close()

	c := NewClient(Config{})
	doc, err := c.FetchDocument(context.Background(), srv.URL+"/files/doc.pdf")
	if err != nil {
		t.Fatalf("FetchDocument: %v", err)
	}
	defer doc.Body.Close()

	if doc.ContentType != "application/pdf" {
		t.Errorf("content type = %q", doc.ContentType)
	}
	body, _ := io.ReadAll(doc.Body)
	if string(body) != "%PDF-fake" {
		t.Errorf("body = %q", body)
	}
}

func TestFetchDocumentRejectsNonHTTPSchemes(t *testing.T) {
	c := NewClient(Config{})
	for _, link := range []string{"file:///etc/passwd", "ftp://files.example/doc.pdf", "javascript:alert(1)"} {
		if _, err := c.FetchDocument(context.Background(), link); err == nil {
			t.Errorf("FetchDocument(%q) accepted, want error", link)
		}
	}
}
