package usecase

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/aphrodite-labs/phishguard/internal/detection"
	"github.com/aphrodite-labs/phishguard/internal/domain"
	"github.com/aphrodite-labs/phishguard/pkg/security"
)

const signedContentPrefixLen = 100

// ScanConfig carries the pipeline's keys.
type ScanConfig struct {
	// SigningSecret keys the HMAC over every scan record.
	SigningSecret string
	// ReaderPublicKeyPEM, when set, seals each record's encryption key
	// for this reader instead of storing the key in the clear.
	ReaderPublicKeyPEM string
}

// ScanResult is what a submission returns to the caller: the verdict plus
// the id of the persisted, signed, encrypted record.
type ScanResult struct {
	domain.ScanVerdict
	ID string `json:"id"`
}

// RevealedScan is a decrypted record with its signature re-checked.
type RevealedScan struct {
	Scan              *domain.Scan `json:"scan"`
	Content           string       `json:"content"`
	SignatureVerified bool         `json:"signature_verified"`
}

// signableScan fixes the tuple covered by the record signature.
type signableScan struct {
	Type          domain.ScanType    `json:"type"`
	ContentPrefix string             `json:"content"`
	Verdict       domain.ScanVerdict `json:"result"`
	Timestamp     string             `json:"timestamp"`
}

// ScanUsecase is the scan envelope pipeline: classify, encrypt, sign,
// persist.
type ScanUsecase struct {
	scans   domain.ScanRepository
	ml      *detection.MLClient
	auditor domain.AuditLogger
	cfg     ScanConfig
	logger  *zap.Logger
}

// NewScanUsecase wires the pipeline. ml may be nil when no classifier is
// configured.
func NewScanUsecase(scans domain.ScanRepository, ml *detection.MLClient, auditor domain.AuditLogger, cfg ScanConfig, logger *zap.Logger) *ScanUsecase {
	return &ScanUsecase{scans: scans, ml: ml, auditor: auditor, cfg: cfg, logger: logger}
}

// Submit runs the full pipeline for one scan request.
func (s *ScanUsecase) Submit(ctx context.Context, userID string, scanType domain.ScanType, content string, meta domain.RequestMeta) (*ScanResult, error) {
	if !scanType.Valid() || content == "" {
		return nil, ErrInvalidInput
	}

	verdict := s.classify(ctx, scanType, content)

	// Fresh key per record; the AEAD layer guarantees a fresh IV per call.
	key, err := security.GenerateEncryptionKey()
	if err != nil {
		return nil, err
	}
	payload, err := security.Encrypt(content, key)
	if err != nil {
		return nil, err
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	signed, err := security.SignRecord(signableScan{
		Type:          scanType,
		ContentPrefix: contentPrefix(content),
		Verdict:       verdict,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}, s.cfg.SigningSecret)
	if err != nil {
		return nil, err
	}
	signatureJSON, err := json.Marshal(signed)
	if err != nil {
		return nil, err
	}

	scan := &domain.Scan{
		UserID:           userID,
		Type:             scanType,
		EncryptedContent: base64.StdEncoding.EncodeToString(payloadJSON),
		IsPhishing:       verdict.IsPhishing,
		Score:            verdict.Score,
		Reasons:          verdict.Reasons,
		Signature:        string(signatureJSON),
		CreatedAt:        time.Now().UTC(),
	}

	if s.cfg.ReaderPublicKeyPEM != "" {
		// Production contract: the key only ever exists wrapped for the
		// intended reader.
		sealed, err := security.WrapKey(key, s.cfg.ReaderPublicKeyPEM)
		if err != nil {
			return nil, err
		}
		scan.SealedKey = sealed
	} else {
		// Demo contract carried over deliberately: the key rides along in
		// the clear so records stay decryptable without a reader keypair.
		scan.EncryptionKey = hex.EncodeToString(key)
	}

	id, err := s.scans.Save(ctx, scan)
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, userID, "scan_performed", map[string]any{
		"type":        scanType,
		"is_phishing": verdict.IsPhishing,
		"score":       verdict.Score,
		"model":       verdict.Model,
	}, meta)

	return &ScanResult{ScanVerdict: verdict, ID: id}, nil
}

// classify obtains the verdict: the optional ML classifier first for
// URLs, the heuristic scorer as the unconditional fallback. The ML path
// never fails a request.
func (s *ScanUsecase) classify(ctx context.Context, scanType domain.ScanType, content string) domain.ScanVerdict {
	if scanType == domain.ScanTypeEmail {
		return detection.ScoreEmail(content)
	}

	if s.ml.Enabled() {
		if verdict, err := s.ml.Classify(ctx, content); err == nil {
			return *verdict
		} else {
			s.logger.Debug("ml classifier unavailable, using heuristic", zap.Error(err))
		}
	}
	return detection.ScoreURL(content)
}

// History lists a user's scan records, newest first.
func (s *ScanUsecase) History(ctx context.Context, userID string, scanType domain.ScanType, limit, offset int) ([]*domain.Scan, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.scans.ListByUser(ctx, userID, scanType, limit, offset)
}

// Reveal fetches one record, re-verifies its signature and decrypts the
// content. Only records carrying their key in the clear can be revealed
// here; sealed records need the reader's private key, which this service
// does not hold.
func (s *ScanUsecase) Reveal(ctx context.Context, userID, id string) (*RevealedScan, error) {
	scan, err := s.scans.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	revealed := &RevealedScan{Scan: scan}

	var signed security.SignedRecord
	if err := json.Unmarshal([]byte(scan.Signature), &signed); err == nil {
		revealed.SignatureVerified = security.VerifySignedRecord(&signed, s.cfg.SigningSecret)
	}

	if scan.EncryptionKey == "" {
		return revealed, nil
	}
	key, err := hex.DecodeString(scan.EncryptionKey)
	if err != nil {
		return revealed, nil
	}
	payloadJSON, err := base64.StdEncoding.DecodeString(scan.EncryptedContent)
	if err != nil {
		return revealed, nil
	}
	var payload security.EncryptedPayload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return revealed, nil
	}
	if content, err := security.Decrypt(&payload, key); err == nil {
		revealed.Content = content
	}
	return revealed, nil
}

// contentPrefix takes the first 100 characters of the content for the
// signed tuple, so the signature binds to the submission without storing
// the full plaintext beside the ciphertext.
func contentPrefix(content string) string {
	runes := []rune(content)
	if len(runes) > signedContentPrefixLen {
		runes = runes[:signedContentPrefixLen]
	}
	return string(runes)
}
