package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fir-api/internal/dto"
	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/internal/policy"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
	"github.com/noah-isme/fir-api/pkg/storage"
)

const (
	sniffLen       = 512
	evidencePrefix = "evidence"
	unknownExt     = ".bin"
)

var evidenceExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
	"video/mp4":       ".mp4",
	"audio/mpeg":      ".mp3",
}

type firReader interface {
	Get(ctx context.Context, principal models.Principal, id string) (*models.FIR, error)
}

// EvidenceConfig tunes evidence uploads.
type EvidenceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	DownloadPath string
}

// EvidenceService stores evidence files and hands out signed download links.
// FIRs only ever carry the opaque file reference it returns.
type EvidenceService struct {
	store   storage.BlobStore
	signer  *storage.SignedURLSigner
	firs    firReader
	logger  *zap.Logger
	cfg     EvidenceConfig
	allowed map[string]bool
}

// NewEvidenceService constructs an EvidenceService.
func NewEvidenceService(store storage.BlobStore, signer *storage.SignedURLSigner, firs firReader, logger *zap.Logger, cfg EvidenceConfig) *EvidenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/evidence/download"
	}
	allowed := make(map[string]bool, len(cfg.AllowedMIMEs))
	for _, mime := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(mime))] = true
	}
	return &EvidenceService{store: store, signer: signer, firs: firs, logger: logger, cfg: cfg, allowed: allowed}
}

// Upload validates and stores an evidence file for a citizen about to file a
// report. The content type is sniffed from the bytes, not taken from the client.
func (s *EvidenceService) Upload(ctx context.Context, principal models.Principal, r io.Reader, declaredSize int64) (*dto.EvidenceUploadResponse, error) {
	if err := policy.Decide(principal, policy.ActionFileFIR, nil); err != nil {
		return nil, err
	}
	if declaredSize > s.cfg.MaxFileSize {
		return nil, s.tooLarge()
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Validation(err, "failed to read upload")
	}
	head = head[:n]
	if n == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(http.DetectContentType(head), ";", 2)[0]))
	if len(s.allowed) > 0 && !s.allowed[contentType] {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", contentType))
	}

	ext, ok := evidenceExtensions[contentType]
	if !ok {
		ext = unknownExt
	}
	key := evidenceKey(principal.ID(), ext)
	body := io.MultiReader(bytes.NewReader(head), io.LimitReader(r, s.cfg.MaxFileSize+1-int64(n)))

	info, err := s.store.Put(ctx, key, body, contentType)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store evidence")
	}
	if info.Size > s.cfg.MaxFileSize {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to remove oversized evidence", zap.String("key", key), zap.Error(err))
		}
		return nil, s.tooLarge()
	}
	s.logger.Info("evidence stored",
		zap.String("key", key),
		zap.Int64("size", info.Size),
		zap.String("content_type", contentType),
		zap.String("principal_id", principal.ID()),
	)
	return &dto.EvidenceUploadResponse{FileRef: key, Size: info.Size, ContentType: contentType}, nil
}

// Exists reports whether an evidence object is stored under fileRef.
func (s *EvidenceService) Exists(ctx context.Context, fileRef string) (bool, error) {
	reader, _, err := s.store.Open(ctx, fileRef)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	_ = reader.Close()
	return true, nil
}

// Link returns a signed download link for the evidence attached to a FIR the
// caller can see.
func (s *EvidenceService) Link(ctx context.Context, principal models.Principal, firID string) (*dto.EvidenceLinkResponse, error) {
	fir, err := s.firs.Get(ctx, principal, firID)
	if err != nil {
		return nil, err
	}
	if fir.EvidenceRef == nil || *fir.EvidenceRef == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "fir has no evidence attached")
	}
	token, expiresAt, err := s.signer.Generate(fir.ID, *fir.EvidenceRef)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign evidence link")
	}
	return &dto.EvidenceLinkResponse{
		Token:     token,
		URL:       s.cfg.DownloadPath + "?token=" + url.QueryEscape(token),
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// Download resolves a signed token to the stored evidence. The caller must
// close the returned reader.
func (s *EvidenceService) Download(ctx context.Context, token string) (io.ReadCloser, storage.ObjectInfo, error) {
	signed, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, storage.ObjectInfo{}, appErrors.Clone(appErrors.ErrForbidden, "download link has expired")
		}
		return nil, storage.ObjectInfo{}, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid")
	}
	reader, info, err := s.store.Open(ctx, signed.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectInfo{}, appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
		}
		return nil, storage.ObjectInfo{}, appErrors.Internal(err, "failed to open evidence")
	}
	return reader, info, nil
}

func (s *EvidenceService) tooLarge() error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxFileSize))
}

// evidenceKey names a new upload. The uploader's id is part of the key so a
// reference can only be attached by the citizen who uploaded it.
func evidenceKey(ownerID, ext string) string {
	return path.Join(evidencePrefix, ownerID, uuid.NewString()+ext)
}

// evidenceOwnedBy reports whether ref has the shape evidenceKey produces for ownerID.
func evidenceOwnedBy(ref, ownerID string) bool {
	parts := strings.Split(ref, "/")
	if ownerID == "" || len(parts) != 3 || parts[0] != evidencePrefix || parts[1] != ownerID {
		return false
	}
	ext := path.Ext(parts[2])
	if !knownEvidenceExt(ext) {
		return false
	}
	_, ok := canonicalID(strings.TrimSuffix(parts[2], ext))
	return ok
}

func knownEvidenceExt(ext string) bool {
	if ext == unknownExt {
		return true
	}
	for _, known := range evidenceExtensions {
		if known == ext {
			return true
		}
	}
	return false
}
