// Package webhook talks to the upstream automation endpoints that front the
// actual system of record. All record traffic goes through them.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"
)

// Client wraps the four upstream endpoints. Endpoint URLs come from
// configuration; the upstream is opaque beyond its HTTP contract.
type Client struct {
	http      *http.Client
	fetchURL  string
	updateURL string
	saveURL   string
	uploadURL string
}

type Config struct {
	FetchURL  string
	UpdateURL string
	SaveURL   string
	UploadURL string
	Timeout   time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		fetchURL:  cfg.FetchURL,
		updateURL: cfg.UpdateURL,
		saveURL:   cfg.SaveURL,
		uploadURL: cfg.UploadURL,
	}
}

// FetchRecords retrieves the raw record collection. An empty or
// whitespace-only body is a valid empty collection; a body that is not a
// JSON array is an error.
func (c *Client) FetchRecords(ctx context.Context) ([]core.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch records: upstream returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read fetch body: %w", err)
	}
	if strings.TrimSpace(string(body)) == "" {
		return []core.RawRecord{}, nil
	}

	var records []core.RawRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode fetch body: %w", err)
	}
	return records, nil
}

// categoryUpdate is the update endpoint's payload. The upstream keys the
// record by invoice_nr and reads the status from both label and status.
type categoryUpdate struct {
	InvoiceNr string `json:"invoice_nr"`
	Category  string `json:"category"`
	Label     string `json:"label"`
	Status    string `json:"status"`
}

// UpdateCategory pushes a category assignment upstream. The returned error
// is nil only when the upstream acknowledged the change.
func (c *Client) UpdateCategory(ctx context.Context, id string, category core.Category, status core.Status) error {
	payload, err := json.Marshal(categoryUpdate{
		InvoiceNr: id,
		Category:  string(category),
		Label:     string(status),
		Status:    string(status),
	})
	if err != nil {
		return fmt.Errorf("encode update payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.updateURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("update category: upstream returned %d", resp.StatusCode)
	}
	return nil
}

// Save forwards a draft record to the save endpoint verbatim.
func (c *Client) Save(ctx context.Context, record core.RawRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode save payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.saveURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("save record: upstream returned %d", resp.StatusCode)
	}
	return nil
}

// Upload streams a document to the extraction endpoint as multipart form
// data, the type field first so the upstream can route before it reads the
// file. The response may carry extracted fields for prefill.
func (c *Client) Upload(ctx context.Context, docType core.DocType, filename string, data io.Reader) (*core.ExtractedFields, error) {
	if docType == "" {
		docType = core.TypeReceipt
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("type", string(docType)); err != nil {
		return nil, fmt.Errorf("write type field: %w", err)
	}
	part, err := w.CreateFormFile("data", filename)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, fmt.Errorf("copy file data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upload document: upstream returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, nil
	}

	var raw core.RawRecord
	if err := json.Unmarshal(body, &raw); err != nil {
		// Extraction output is best effort; a non-JSON ack is not a failure.
		return nil, nil
	}
	fields := core.NormalizeExtracted(raw)
	return &fields, nil
}

// Document is a proxied upstream document stream. Close the Body when done.
type Document struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// FetchDocument retrieves a stored document for inline viewing. Record
// links point at arbitrary external hosts (drive shares, file stores), so
// the link itself is fetched; only http and https targets are accepted.
func (c *Client) FetchDocument(ctx context.Context, rawURL string) (*Document, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse document url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("fetch document: unsupported scheme %q", target.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build document request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch document: upstream returned %d", resp.StatusCode)
	}

	return &Document{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}
