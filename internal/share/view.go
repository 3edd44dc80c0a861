package share

import "time"

// Subject is the part of a document a link can expose.
type Subject struct {
	Title       string
	Description string
	Category    string
	UploadedBy  string
	UploadedAt  time.Time
	FileName    string
	ContentType string
	File        []byte
}

// Shared is what a link holder sees.
type Shared struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	UploadedBy  string    `json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadDate"`
	Access      Access    `json:"accessLevel"`
	FileName    string    `json:"fileName,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	File        []byte    `json:"file,omitempty"`
}

// Expose projects s through link. The file is only included when the link
// grants download.
func Expose(link Link, s Subject) Shared {
	v := Shared{
		Title:       s.Title,
		Description: s.Description,
		Category:    s.Category,
		UploadedBy:  s.UploadedBy,
		UploadedAt:  s.UploadedAt,
		Access:      link.Access,
	}
	if link.Access == Download {
		v.FileName = s.FileName
		v.ContentType = s.ContentType
		v.File = s.File
	}
	return v
}
