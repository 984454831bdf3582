package models

import "time"

// PlatformStats aggregates record counts for the admin dashboard.
type PlatformStats struct {
	Students             int           `json:"students"`
	Tutors               int           `json:"tutors"`
	Admins               int           `json:"admins"`
	Courses              int           `json:"courses"`
	Enrollments          int           `json:"enrollments"`
	CompletedEnrollments int           `json:"completed_enrollments"`
	Certificates         int           `json:"certificates"`
	System               SystemMetrics `json:"system"`
}

// SystemMetrics is a lightweight snapshot of process level metrics.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CertificatesIssued       uint64    `json:"certificates_issued"`
	CompletionsRecorded      uint64    `json:"completions_recorded"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
