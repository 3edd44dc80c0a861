package model

import "time"

// DocumentVersion is one entry of a document's version chain. Rows are only
// ever inserted.
type DocumentVersion struct {
	DocumentID  string `gorm:"primaryKey;uuid;not null"`
	Version     int    `gorm:"primaryKey;autoIncrement:false"`
	Previous    int
	Author      string `gorm:"not null"`
	At          time.Time
	Title       string
	Category    string
	Description string
	Status      string
	Tags        string // json encoded list
	Summary     string
}

func (DocumentVersion) TableName() string {
	return "document_versions"
}
