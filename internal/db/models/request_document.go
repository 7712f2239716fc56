package models

import "time"

// RequestDocument is an uploaded file attached to a request. StoragePath is an
// opaque key into the document container and is never shown to clients.
type RequestDocument struct {
	ID          string    `db:"id" json:"id"`
	RequestID   string    `db:"request_id" json:"request_id"`
	Filename    string    `db:"filename" json:"filename"`
	StoragePath string    `db:"storage_path" json:"-"`
	FileType    string    `db:"file_type" json:"file_type"`
	FileSize    int64     `db:"file_size" json:"file_size"`
	Checksum    *string   `db:"checksum" json:"checksum,omitempty"`
	IsSample    bool      `db:"is_sample" json:"is_sample"`
	UploadedBy  *string   `db:"uploaded_by" json:"uploaded_by,omitempty"`
	UploadedAt  time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// CleanupEntry is a storage object left behind by a partially failed
// document upload or delete.
type CleanupEntry struct {
	StoragePath string    `db:"storage_path" json:"storage_path"`
	Reason      string    `db:"reason" json:"reason"`
	Attempts    int       `db:"attempts" json:"attempts"`
	LastError   *string   `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Cleanup reasons
const (
	CleanupRowDeleteFailed = "row_delete_failed"
	CleanupOrphanedUpload  = "orphaned_upload"
	CleanupRequestDeleted  = "request_deleted"
)
