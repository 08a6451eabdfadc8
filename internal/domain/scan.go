package domain

import (
	"context"
	"time"
)

// ScanType discriminates what kind of content a scan request carries.
type ScanType string

const (
	ScanTypeURL   ScanType = "url"
	ScanTypeEmail ScanType = "email"
)

// Valid reports whether the type is one of the supported scan kinds.
func (t ScanType) Valid() bool {
	return t == ScanTypeURL || t == ScanTypeEmail
}

// ScanVerdict is the immutable output of a phishing classification.
type ScanVerdict struct {
	IsPhishing bool      `json:"is_phishing"`
	Score      int       `json:"score"` // clamped to [0,100]
	Reasons    []string  `json:"reasons"`
	Timestamp  time.Time `json:"timestamp"`
	Model      string    `json:"model"` // "heuristic" or "ml"
}

// Scan is the durable record produced by the scan envelope pipeline.
// Content is stored encrypted; the verdict and signature stay inspectable
// so records can be audited without decryption.
type Scan struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Type             ScanType  `json:"type"`
	EncryptedContent string    `json:"content"` // base64 of the JSON-encoded AEAD payload
	IsPhishing       bool      `json:"is_phishing"`
	Score            int       `json:"score"`
	Reasons          []string  `json:"reasons"`
	Signature        string    `json:"signature"` // JSON-encoded signed record
	EncryptionKey    string    `json:"-"`         // hex; demo contract, see SealedKey
	SealedKey        string    `json:"-"`         // RSA-wrapped key when a reader key is configured
	CreatedAt        time.Time `json:"created_at"`
}

// ScanRepository persists scan records. The core never depends on the
// store's internal representation.
type ScanRepository interface {
	Save(ctx context.Context, scan *Scan) (string, error)
	GetByID(ctx context.Context, userID, id string) (*Scan, error)
	ListByUser(ctx context.Context, userID string, scanType ScanType, limit, offset int) ([]*Scan, int, error)
}
