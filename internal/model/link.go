package model

import "time"

// ShareLink is a share link of a document. The token is unique across all
// documents.
type ShareLink struct {
	Token      string `gorm:"primaryKey;not null"`
	DocumentID string `gorm:"uuid;not null;index:idx_share_links_document_id"`
	Access     string `gorm:"not null"`
	ExpiresAt  *time.Time
	CreatedBy  string
	CreatedAt  time.Time
	Active     bool `gorm:"not null"`
}

func (ShareLink) TableName() string {
	return "share_links"
}
