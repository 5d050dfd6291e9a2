package analysis

import (
	"time"
)

// StartResponse is returned when an analysis is queued
type StartResponse struct {
	AnalysisID string `json:"analysis_id"`
	Status     string `json:"status"`
}

// UploadResponse lists the stored reference images
type UploadResponse struct {
	Message string   `json:"message"`
	Paths   []string `json:"paths"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports service and dependency status
type HealthResponse struct {
	Status    string        `json:"status"`
	Service   string        `json:"service"`
	Database  string        `json:"database,omitempty"`
	Workers   *WorkerHealth `json:"workers,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// WorkerHealth summarizes the analysis worker pool
type WorkerHealth struct {
	Pending   int    `json:"pending"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
	LastError string `json:"last_error,omitempty"`
}
