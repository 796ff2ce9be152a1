package models

import "time"

// Document describes one ingested file in the platform's retrieval store.
type Document struct {
	ID        string                 `json:"document_id"`
	FileName  string                 `json:"file_name"`
	Chunks    int                    `json:"chunks"`
	SizeBytes int64                  `json:"size_bytes"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// IngestionJob tracks the asynchronous processing of an uploaded document.
type IngestionJob struct {
	JobID      string     `json:"job_id"`
	DocumentID string     `json:"document_id,omitempty"`
	Status     string     `json:"status"` // queued, processing, completed, failed
	Chunks     int        `json:"chunks,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RemoteSession is one durable session as reported by the platform's
// chat history endpoint.
type RemoteSession struct {
	SessionID string          `json:"session_id"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []RemoteMessage `json:"messages"`
}

// RemoteMessage is one durable message inside a RemoteSession.
type RemoteMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}
