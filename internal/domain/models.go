package domain

import (
	"time"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Identity is the caller-supplied user identity, trusted as already
// authenticated by the platform's auth service.
type Identity struct {
	UserID  uint64
	Name    string
	IsAdmin bool
}

// User is a read-only mirror of the platform's user directory.
type User struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email" gorm:"uniqueIndex"`
	IsAdmin   bool      `json:"is_admin"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Document struct {
	ID             uint64                 `json:"id"`
	Title          string                 `json:"title"`
	Content        string                 `json:"content"`
	CurrentVersion uint64                 `json:"current_version"`
	OwnerID        uint64                 `json:"owner_id"`
	Visibility     Visibility             `json:"visibility" gorm:"type:varchar(16);default:private"`
	RoomID         *uint64                `json:"room_id,omitempty" gorm:"index"` // nil for standalone documents
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	Collaborators  []DocumentCollaborator `json:"-"`
}

type DocumentCollaborator struct {
	ID         uint64    `json:"-"`
	DocumentID uint64    `json:"document_id" gorm:"uniqueIndex:idx_doc_collaborator"`
	UserID     uint64    `json:"user_id" gorm:"uniqueIndex:idx_doc_collaborator"`
	Role       string    `json:"role"`
	AddedAt    time.Time `json:"added_at"`
}

// ChangeSummary counts line-level changes relative to the previous version.
type ChangeSummary struct {
	AddedLines    int `json:"added_lines"`
	RemovedLines  int `json:"removed_lines"`
	ModifiedLines int `json:"modified_lines"`
	TotalChanges  int `json:"total_changes"`
}

type ContentStats struct {
	WordCount      int `json:"word_count"`
	CharacterCount int `json:"character_count"`
	LineCount      int `json:"line_count"`
}

// DocumentVersion is an immutable full-content snapshot. Rows are append
// only: versions are never updated or deleted, and a rollback creates a new
// row pointing back at the restored version.
type DocumentVersion struct {
	ID         uint64 `json:"-"`
	DocumentID uint64 `json:"document_id" gorm:"uniqueIndex:idx_doc_version"`
	Version    uint64 `json:"version" gorm:"uniqueIndex:idx_doc_version"`

	Content   string    `json:"content"`
	Title     string    `json:"title"`
	AuthorID  uint64    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`

	IsSnapshot          bool     `json:"is_snapshot"`
	SnapshotName        string   `json:"snapshot_name,omitempty"`
	SnapshotDescription string   `json:"snapshot_description,omitempty"`
	Tags                []string `json:"tags,omitempty" gorm:"serializer:json"`

	IsAutoSave bool `json:"is_auto_save"`

	RollbackOf     *uint64 `json:"rollback_of,omitempty"`
	RollbackReason string  `json:"rollback_reason,omitempty"`

	Changes ChangeSummary `json:"changes" gorm:"embedded"`
	Stats   ContentStats  `json:"stats" gorm:"embedded"`
}
