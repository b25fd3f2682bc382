package db

import "time"

type CaseModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"index;not null"`
	Title     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (CaseModel) TableName() string {
	return "cases"
}

type EventModel struct {
	ID         string    `gorm:"type:varchar(36);primaryKey"`
	CaseID     string    `gorm:"index;not null"`
	UserID     string    `gorm:"not null"`
	Date       time.Time `gorm:"column:event_date;not null"`
	Title      string    `gorm:"not null"`
	Note       *string
	SourceType string `gorm:"not null"`
	SourceRef  *string
	CreatedAt  time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (EventModel) TableName() string {
	return "events"
}

type EvidenceItemModel struct {
	ID                string `gorm:"type:varchar(36);primaryKey"`
	CaseID            string `gorm:"not null"`
	UserID            string `gorm:"not null"`
	EventID           *string
	Filename          string    `gorm:"not null"`
	MimeType          string    `gorm:"not null"`
	ByteLength        int64     `gorm:"not null"`
	SHA256            string    `gorm:"column:sha256;not null"`
	CapturedAt        time.Time `gorm:"not null"`
	StorageRef        string    `gorm:"not null"`
	IngestionStatus   string    `gorm:"not null"`
	ExtractionVersion string    `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null;autoCreateTime:false"`
}

func (EvidenceItemModel) TableName() string {
	return "evidence_items"
}

type LedgerEntryModel struct {
	ID             string    `gorm:"type:varchar(36);primaryKey"`
	CaseID         string    `gorm:"not null"`
	UserID         string    `gorm:"not null"`
	SequenceNumber int64     `gorm:"not null"`
	PrevHash       string    `gorm:"not null"`
	Hash           string    `gorm:"not null"`
	EvidenceID     string    `gorm:"not null"`
	EvidenceSHA256 string    `gorm:"column:evidence_sha256;not null"`
	CapturedAt     string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime:false"`
}

func (LedgerEntryModel) TableName() string {
	return "ledger"
}
