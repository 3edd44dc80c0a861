package model

// DocumentTag indexes the tag set of a document for filtering.
type DocumentTag struct {
	DocumentID string `gorm:"primaryKey;uuid;not null"`
	Tag        string `gorm:"primaryKey;not null;index:idx_document_tags_tag"`
}

func (DocumentTag) TableName() string {
	return "document_tags"
}
