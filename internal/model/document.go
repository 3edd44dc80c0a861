package model

import (
	"time"
)

// Document is the live row of a document. Versions, tags and share links live
// in their own tables; the approval flow and file description are stored as
// json.
type Document struct {
	ID             string `gorm:"primaryKey;uuid;not null;"`
	Revision       int64  `gorm:"not null"`
	Title          string `gorm:"not null"`
	Category       string `gorm:"not null;index"`
	Description    string
	Status         string `gorm:"index"`
	Logs           string    // json encoded list
	Public         bool      `gorm:"not null;default:false"`
	UploadedBy     string    `gorm:"not null"`
	UploadedAt     time.Time `gorm:"index"`
	LastModified   time.Time
	LastModifiedBy string
	Approval       string // json encoded approval flow
	FileMeta       string // json encoded file description, without data
	FileData       []byte
	Compression    string // the compression algorithm used for FileData
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Document) TableName() string {
	return "documents"
}
