package documents

import "time"

const (
	CategoryIntake         = "intake"
	CategoryConsent        = "consent"
	CategoryInsuranceCard  = "insurance_card"
	CategoryLab            = "lab"
	CategoryCorrespondence = "correspondence"
	CategoryOther          = "other"
)

var validCategories = map[string]bool{
	CategoryIntake: true, CategoryConsent: true, CategoryInsuranceCard: true,
	CategoryLab: true, CategoryCorrespondence: true, CategoryOther: true,
}

// Document maps to the documents table. The content lives in the blob store
// under StorageKey.
type Document struct {
	ID          int64     `db:"id" json:"id"`
	ClientID    int64     `db:"client_id" json:"client_id"`
	Category    string    `db:"category" json:"category"`
	FileName    string    `db:"file_name" json:"file_name"`
	ContentType string    `db:"content_type" json:"content_type"`
	Size        int64     `db:"size" json:"size"`
	SHA256      string    `db:"sha256" json:"sha256"`
	StorageKey  string    `db:"storage_key" json:"-"`
	UploadedBy  *int64    `db:"uploaded_by" json:"uploaded_by,omitempty"`
	Description *string   `db:"description" json:"description,omitempty"`
	IsDeleted   bool      `db:"is_deleted" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Upload carries the metadata sent alongside the file.
type Upload struct {
	ClientID    int64
	Category    string
	Description string
	FileName    string
	ContentType string
}
