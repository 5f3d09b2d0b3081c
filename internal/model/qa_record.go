package model

import "time"

// QARecord is one answered question persisted to the audit log.
type QARecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DocumentRef string    `gorm:"size:1024;index" json:"document_ref"`
	Question    string    `gorm:"type:text" json:"question"`
	Answer      string    `gorm:"type:text" json:"answer"`
	Decision    string    `gorm:"size:64" json:"decision,omitempty"`
	LatencyMs   int64     `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}
