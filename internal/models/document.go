package models

import "time"

// DocumentKind classifies an uploaded document.
type DocumentKind string

const (
	DocumentFeeReceipt DocumentKind = "fee_receipt"
	DocumentIDCard     DocumentKind = "id_card"
	DocumentOther      DocumentKind = "other"
)

// Valid reports whether k is a known kind.
func (k DocumentKind) Valid() bool {
	switch k {
	case DocumentFeeReceipt, DocumentIDCard, DocumentOther:
		return true
	}
	return false
}

// Document is supporting evidence attached to a clearance.
type Document struct {
	ID          string       `db:"id" json:"id"`
	ClearanceID string       `db:"clearance_id" json:"clearance_id"`
	Kind        DocumentKind `db:"kind" json:"kind"`
	BlobKey     string       `db:"blob_key" json:"-"`
	FileName    string       `db:"file_name" json:"file_name"`
	MimeType    string       `db:"mime_type" json:"mime_type"`
	SizeBytes   int64        `db:"size_bytes" json:"size_bytes"`
	UploadedAt  time.Time    `db:"uploaded_at" json:"uploaded_at"`
}
