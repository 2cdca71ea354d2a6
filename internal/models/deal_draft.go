package models

import (
	"time"
)

// DealDraft caches the last draft fetched for a deal so a previously
// loaded verification screen can render offline. PropertyJSON, RentRollJSON
// and T12JSON hold the structured slices exactly as the backend returned
// them; the verification service owns the editable in-memory copy.
type DealDraft struct {
	DealID       string    `gorm:"primaryKey;column:deal_id" json:"deal_id"`
	PropertyJSON string    `gorm:"type:text;column:property_json" json:"property_json"`
	RentRollJSON string    `gorm:"type:text;column:rent_roll_json" json:"rent_roll_json"`
	T12JSON      string    `gorm:"type:text;column:t12_json" json:"t12_json"`
	Status       string    `gorm:"default:draft" json:"status"` // draft, active, dead
	FetchedAt    time.Time `gorm:"column:fetched_at" json:"fetched_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (DealDraft) TableName() string {
	return "deal_drafts"
}
