package service

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fir-api/internal/models"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
	"github.com/noah-isme/fir-api/pkg/storage"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0x01}, 64)...)

func newEvidenceService(t *testing.T, env *testEnv, maxSize int64) *EvidenceService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("evidence-secret", time.Minute)
	svc := NewEvidenceService(store, signer, env.firs, nil, EvidenceConfig{
		MaxFileSize:  maxSize,
		AllowedMIMEs: []string{"image/png", "application/pdf"},
	})
	env.firs.SetEvidenceLocator(svc)
	return svc
}

func TestEvidenceUploadLinkDownload(t *testing.T) {
	env := newTestEnv(t)
	svc := newEvidenceService(t, env, 1024)
	station := env.store.addStation("PS001")
	alice := env.citizen(t, "alice")
	bob := env.officer(t, "bob", station)
	erin := env.citizen(t, "erin")
	ctx := context.Background()

	uploaded, err := svc.Upload(ctx, alice, bytes.NewReader(pngBytes), int64(len(pngBytes)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", uploaded.ContentType)
	assert.Equal(t, int64(len(pngBytes)), uploaded.Size)
	assert.True(t, strings.HasPrefix(uploaded.FileRef, "evidence/"+alice.ID()+"/"))
	assert.True(t, strings.HasSuffix(uploaded.FileRef, ".png"))

	req := firRequest(station.ID)
	req.FileRef = &uploaded.FileRef
	fir, err := env.firs.File(ctx, alice, req)
	require.NoError(t, err)

	link, err := svc.Link(ctx, bob, fir.ID)
	require.NoError(t, err)
	assert.Contains(t, link.URL, "/api/v1/evidence/download?token="+url.QueryEscape(link.Token))

	_, err = svc.Link(ctx, erin, fir.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	reader, info, err := svc.Download(ctx, link.Token)
	require.NoError(t, err)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, body)
	assert.Equal(t, uploaded.FileRef, info.Key)
}

func TestEvidenceUploadRejections(t *testing.T) {
	env := newTestEnv(t)
	svc := newEvidenceService(t, env, 32)
	station := env.store.addStation("PS001")
	alice := env.citizen(t, "alice")
	bob := env.officer(t, "bob", station)
	ctx := context.Background()

	_, err := svc.Upload(ctx, bob, bytes.NewReader(pngBytes), 0)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Upload(ctx, alice, strings.NewReader("just some text"), 0)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Upload(ctx, alice, bytes.NewReader(pngBytes), int64(len(pngBytes)))
	assert.ErrorIs(t, err, appErrors.ErrValidation, "declared size over limit")

	_, err = svc.Upload(ctx, alice, bytes.NewReader(pngBytes), 0)
	assert.ErrorIs(t, err, appErrors.ErrValidation, "streamed size over limit")

	_, err = svc.Upload(ctx, alice, bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestEvidenceLinkRequiresAttachment(t *testing.T) {
	env := newTestEnv(t)
	svc := newEvidenceService(t, env, 1024)
	station := env.store.addStation("PS001")
	alice := env.citizen(t, "alice")
	fir := env.file(t, alice, station)

	_, err := svc.Link(context.Background(), alice, fir.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, _, err = svc.Download(context.Background(), "not.a.valid.token")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestEvidenceDownloadMissingObject(t *testing.T) {
	env := newTestEnv(t)
	svc := newEvidenceService(t, env, 1024)
	token, _, err := svc.signer.Generate("fir-1", "evidence/missing.png")
	require.NoError(t, err)

	_, _, err = svc.Download(context.Background(), token)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestFileOnlyAttachesOwnUploads(t *testing.T) {
	env := newTestEnv(t)
	svc := newEvidenceService(t, env, 1024)
	station := env.store.addStation("PS001")
	alice := env.citizen(t, "alice")
	mallory := env.citizen(t, "mallory")
	ctx := context.Background()

	uploaded, err := svc.Upload(ctx, alice, bytes.NewReader(pngBytes), int64(len(pngBytes)))
	require.NoError(t, err)

	attach := func(p models.Principal, ref string) error {
		req := firRequest(station.ID)
		req.FileRef = &ref
		_, err := env.firs.File(ctx, p, req)
		return err
	}

	assert.ErrorIs(t, attach(mallory, uploaded.FileRef), appErrors.ErrValidation)
	assert.ErrorIs(t, attach(mallory, "not-evidence/whatever"), appErrors.ErrValidation)
	assert.ErrorIs(t, attach(mallory, "evidence/"+mallory.ID()+"/../"+alice.ID()+"/x.png"), appErrors.ErrValidation)
	assert.ErrorIs(t, attach(mallory, evidenceKey(mallory.ID(), ".png")), appErrors.ErrValidation)

	require.NoError(t, attach(alice, uploaded.FileRef))
	assert.ErrorIs(t, attach(alice, uploaded.FileRef), appErrors.ErrConflict)
	assert.Equal(t, 1, env.store.countActions(models.AuditActionFIRCreated))
}

func TestEvidenceOwnedBy(t *testing.T) {
	owner := "3b1f6c0e-2a4d-4e0b-9d3c-5f7a8b9c0d1e"
	cases := []struct {
		ref  string
		want bool
	}{
		{evidenceKey(owner, ".png"), true},
		{evidenceKey(owner, ".bin"), true},
		{evidenceKey(owner, ".exe"), false},
		{evidenceKey("someone-else", ".png"), false},
		{"evidence/" + owner + "/not-a-uuid.png", false},
		{"evidence/abc.png", false},
		{"archive/" + owner + "/3b1f6c0e-2a4d-4e0b-9d3c-5f7a8b9c0d1e.png", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, evidenceOwnedBy(tc.ref, owner), tc.ref)
	}
	assert.False(t, evidenceOwnedBy(evidenceKey("", ".png"), ""))
}
