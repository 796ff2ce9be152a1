package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/djsadd/AcademicQuestionBot/internal/models"
)

// UploadResult is the platform's acknowledgment of an accepted upload.
// Ingestion itself runs asynchronously; JobID tracks it.
type UploadResult struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
	Chunks     int    `json:"chunks,omitempty"`
}

// SearchHit is one retrieved chunk for a documents search query.
type SearchHit struct {
	DocumentID string                 `json:"document_id"`
	Content    string                 `json:"content"`
	Score      float64                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UploadDocument streams a file into the platform's retrieval store.
func (c *Client) UploadDocument(ctx context.Context, token, filename string, file io.Reader, metadata map[string]interface{}) (*UploadResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy upload body: %w", err)
	}
	if len(metadata) > 0 {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		if err := writer.WriteField("metadata", string(encoded)); err != nil {
			return nil, fmt.Errorf("write metadata field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rag/documents/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out UploadResult
	if err := c.do(req, token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDocuments returns all ingested documents.
func (c *Client) ListDocuments(ctx context.Context, token string) ([]models.Document, error) {
	var resp struct {
		Documents []models.Document `json:"documents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/rag/documents", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// DeleteDocument removes a stored document and its vectors.
func (c *Client) DeleteDocument(ctx context.Context, token, documentID string) (*models.Document, error) {
	var resp struct {
		Status   string          `json:"status"`
		Document models.Document `json:"document"`
	}
	path := "/rag/documents/" + url.PathEscape(documentID)
	if err := c.doJSON(ctx, http.MethodDelete, path, token, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Document, nil
}

// SearchDocuments returns the most relevant chunks for the query.
func (c *Client) SearchDocuments(ctx context.Context, token, query string, topK int) ([]SearchHit, error) {
	q := url.Values{"query": {query}}
	if topK > 0 {
		q.Set("top_k", strconv.Itoa(topK))
	}
	var resp struct {
		Query   string      `json:"query"`
		Results []SearchHit `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, pathWithQuery("/rag/documents/search", q), token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// JobStatus polls one ingestion job.
func (c *Client) JobStatus(ctx context.Context, token, jobID string) (*models.IngestionJob, error) {
	var out models.IngestionJob
	path := "/rag/jobs/" + url.PathEscape(jobID)
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
