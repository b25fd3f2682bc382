package domain

import "time"

type SourceType string

const (
	SourceNote     SourceType = "NOTE"
	SourceEmail    SourceType = "EMAIL"
	SourceMessage  SourceType = "MESSAGE"
	SourceDocument SourceType = "DOCUMENT"
	SourcePhoto    SourceType = "PHOTO"
	SourceOther    SourceType = "OTHER"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceNote, SourceEmail, SourceMessage, SourceDocument, SourcePhoto, SourceOther:
		return true
	default:
		return false
	}
}

const (
	IngestionPending = "PENDING"

	// ExtractionVersion is stamped on every new evidence item.
	ExtractionVersion = "2.0.0"

	DefaultMimeType = "application/octet-stream"
)

// Case scopes every event and evidence item to a single owning user.
type Case struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event is a user-asserted point on the timeline. Date is the real-world
// event time and is never derived from CreatedAt.
type Event struct {
	ID         string
	CaseID     string
	UserID     string
	Date       time.Time
	Title      string
	Note       string
	SourceType SourceType
	SourceRef  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EventFilter narrows an event listing. From and To are inclusive. A Limit
// of zero or less returns every matching event.
type EventFilter struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

type EvidenceItem struct {
	ID                string
	CaseID            string
	UserID            string
	EventID           string
	Filename          string
	MimeType          string
	ByteLength        int64
	SHA256            string
	CapturedAt        time.Time
	StorageRef        string
	IngestionStatus   string
	ExtractionVersion string
	CreatedAt         time.Time
}

// LedgerEntry is one link of a case's hash chain. CapturedAt holds the exact
// string that was fed into Hash.
type LedgerEntry struct {
	ID             string
	CaseID         string
	UserID         string
	SequenceNumber int64
	PrevHash       string
	Hash           string
	EvidenceID     string
	EvidenceSHA256 string
	CapturedAt     string
	CreatedAt      time.Time
}
