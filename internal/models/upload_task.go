package models

import (
	"time"
)

// UploadTask tracks the progress of one document submission through the
// request / transfer / confirm / track phases. Mirrors the in-memory
// progress kept by the upload service so a task survives an app restart.
type UploadTask struct {
	ID        string    `gorm:"primaryKey" json:"id"` // UUID task ID
	DealID    string    `gorm:"column:deal_id" json:"deal_id"`
	UploadID  string    `gorm:"column:upload_id" json:"upload_id"`
	JobID     string    `gorm:"column:job_id" json:"job_id"`
	Phase     string    `gorm:"not null;default:requesting" json:"phase"` // requesting, transferring, confirming, tracking, completed, failed
	Progress  int       `gorm:"not null;default:0" json:"progress"`       // 0-100
	Messages  string    `gorm:"type:text" json:"messages"`                // JSON array of strings
	Failure   string    `gorm:"type:text" json:"failure"`                 // JSON failure blob, empty unless phase is failed
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (UploadTask) TableName() string {
	return "upload_tasks"
}
