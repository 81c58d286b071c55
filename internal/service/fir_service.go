package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/fir-api/internal/dto"
	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/internal/policy"
	"github.com/noah-isme/fir-api/internal/repository"
	"github.com/noah-isme/fir-api/pkg/cache"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
	"github.com/noah-isme/fir-api/pkg/export"
)

type firRepository interface {
	Create(ctx context.Context, q sqlx.ExtContext, fir *models.FIR) error
	FindByID(ctx context.Context, id string) (*models.FIR, error)
	FindByIDWith(ctx context.Context, q sqlx.QueryerContext, id string) (*models.FIR, error)
	CompareAndSetStatus(ctx context.Context, q sqlx.ExtContext, params repository.CompareAndSetStatusParams) error
	SetStatus(ctx context.Context, q sqlx.ExtContext, id string, status models.FIRStatus, updatedAt time.Time) error
	Delete(ctx context.Context, q sqlx.ExtContext, id string) error
	List(ctx context.Context, filter models.FIRFilter) ([]models.FIR, int, error)
	ListAll(ctx context.Context, filter models.FIRFilter) ([]models.FIR, error)
}

type evidencePurger interface {
	Schedule(fileRef string)
}

type evidenceLocator interface {
	Exists(ctx context.Context, fileRef string) (bool, error)
}

var errFIRNotFound = appErrors.Clone(appErrors.ErrNotFound, "fir not found")

// FIRService owns the FIR lifecycle.
type FIRService struct {
	firs      firRepository
	stations  stationLookup
	audit     auditWriter
	cache     *CacheService
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	purger    evidencePurger
	locator   evidenceLocator
	now       func() time.Time
}

// NewFIRService constructs a FIRService. cache may be nil.
func NewFIRService(firs firRepository, stations stationLookup, audit auditWriter, cache *CacheService, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *FIRService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &FIRService{
		firs:      firs,
		stations:  stations,
		audit:     audit,
		cache:     cache,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		now:       time.Now,
	}
}

// SetEvidencePurger makes Delete schedule removal of the deleted FIR's evidence.
func (s *FIRService) SetEvidencePurger(p evidencePurger) {
	s.purger = p
}

// SetEvidenceLocator makes File confirm that an attached file reference was
// actually stored.
func (s *FIRService) SetEvidenceLocator(l evidenceLocator) {
	s.locator = l
}

// File records a new report for the calling citizen with status SENT.
func (s *FIRService) File(ctx context.Context, principal models.Principal, req dto.FileFIRRequest) (*models.FIR, error) {
	if err := policy.Decide(principal, policy.ActionFileFIR, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid fir payload")
	}
	if err := s.checkEvidence(ctx, principal, req.FileRef); err != nil {
		return nil, err
	}
	station, err := s.stations.FindByID(ctx, req.StationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "station does not exist")
		}
		return nil, appErrors.Internal(err, "failed to load station")
	}

	fir := &models.FIR{
		FilerID:            principal.ID(),
		StationID:          station.ID,
		CrimeType:          strings.TrimSpace(req.CrimeType),
		Accused:            strings.TrimSpace(req.Accused),
		ComplainantName:    strings.TrimSpace(req.Name),
		ComplainantAge:     req.Age,
		ComplainantPhone:   strings.TrimSpace(req.Phone),
		ComplainantAddress: strings.TrimSpace(req.Address),
		Relation:           strings.TrimSpace(req.Relation),
		Purpose:            strings.TrimSpace(req.Purpose),
		EvidenceRef:        req.FileRef,
		Status:             models.FIRStatusSent,
	}

	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if err := s.firs.Create(ctx, q, fir); err != nil {
			return nil, err
		}
		return auditEntry(actorOf(principal), models.AuditActionFIRCreated, models.EntityFIR, fir.ID,
			fmt.Sprintf("%s filed a %s report", principal.Username(), fir.CrimeType),
			fmt.Sprintf("routed to station %s", station.Code)), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrValidation, "station does not exist")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "evidence is already attached to another report")
		}
		return nil, appErrors.Internal(err, "failed to file fir")
	}
	s.metrics.RecordAudit(entry.Action)
	s.invalidateDashboards(ctx)
	return fir, nil
}

// checkEvidence accepts only a file the caller uploaded themselves.
func (s *FIRService) checkEvidence(ctx context.Context, principal models.Principal, ref *string) error {
	if ref == nil {
		return nil
	}
	if !evidenceOwnedBy(*ref, principal.ID()) {
		return appErrors.Clone(appErrors.ErrValidation, "file_ref does not name an upload of yours")
	}
	if s.locator == nil {
		return nil
	}
	found, err := s.locator.Exists(ctx, *ref)
	if err != nil {
		return appErrors.Internal(err, "failed to check evidence")
	}
	if !found {
		return appErrors.Clone(appErrors.ErrValidation, "file_ref does not name a stored upload")
	}
	return nil
}

// Approve decides a SENT FIR as APPROVED.
func (s *FIRService) Approve(ctx context.Context, principal models.Principal, id string) (*models.FIR, error) {
	return s.Transition(ctx, principal, id, models.FIRStatusApproved, nil)
}

// Reject decides a SENT FIR as REJECTED with an optional note.
func (s *FIRService) Reject(ctx context.Context, principal models.Principal, id string, req dto.RejectFIRRequest) (*models.FIR, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid rejection payload")
	}
	return s.Transition(ctx, principal, id, models.FIRStatusRejected, optionalString(req.Note))
}

// Transition moves a FIR from SENT to APPROVED or REJECTED on behalf of an
// officer of the FIR's station. The status check and the write are one
// conditional UPDATE, committed together with the audit entry, so of two
// racing calls exactly one succeeds and the other gets a conflict.
func (s *FIRService) Transition(ctx context.Context, principal models.Principal, id string, target models.FIRStatus, note *string) (*models.FIR, error) {
	fir, err := s.transition(ctx, principal, id, target, note)
	s.metrics.RecordTransition(target, transitionOutcome(err))
	return fir, err
}

func (s *FIRService) transition(ctx context.Context, principal models.Principal, id string, target models.FIRStatus, note *string) (*models.FIR, error) {
	if !principal.Authenticated() {
		return nil, appErrors.ErrUnauthorized
	}
	action, ok := decisionActions[target]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target status must be APPROVED or REJECTED")
	}
	fir, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	id = fir.ID
	if err := policy.Decide(principal, policy.ActionDecideFIR, fir); err != nil {
		return nil, err
	}
	stationID, _ := principal.StationID()
	now := s.now().UTC()

	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		err := s.firs.CompareAndSetStatus(ctx, q, repository.CompareAndSetStatusParams{
			ID:        id,
			StationID: stationID,
			From:      models.FIRStatusSent,
			To:        target,
			Note:      note,
			UpdatedAt: now,
		})
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.explainMissedTransition(ctx, q, id)
		}
		if err != nil {
			return nil, err
		}
		description := fmt.Sprintf("status SENT -> %s", target)
		if note != nil {
			description += ": " + *note
		}
		return auditEntry(actorOf(principal), action, models.EntityFIR, id,
			fmt.Sprintf("%s marked fir %s", principal.Username(), strings.ToLower(string(target))), description), nil
	})
	if err != nil {
		return nil, domainOrInternal(err, "failed to update fir status")
	}
	s.metrics.RecordAudit(entry.Action)
	s.invalidateDashboards(ctx)

	fir.Status = target
	if note != nil {
		fir.DecisionNote = note
	}
	fir.UpdatedAt = now
	return fir, nil
}

var decisionActions = map[models.FIRStatus]models.AuditAction{
	models.FIRStatusApproved: models.AuditActionFIRApproved,
	models.FIRStatusRejected: models.AuditActionFIRRejected,
}

// explainMissedTransition re-reads the row inside the transaction to report
// why the conditional update matched nothing.
func (s *FIRService) explainMissedTransition(ctx context.Context, q sqlx.QueryerContext, id string) error {
	current, err := s.firs.FindByIDWith(ctx, q, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errFIRNotFound
		}
		return err
	}
	return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("fir has already been decided (status %s)", current.Status))
}

// AdminOverride sets any status on a FIR, bypassing the officer workflow.
func (s *FIRService) AdminOverride(ctx context.Context, principal models.Principal, id string, req dto.StatusOverrideRequest) (*models.FIR, error) {
	if !principal.Authenticated() {
		return nil, appErrors.ErrUnauthorized
	}
	target := models.FIRStatus(strings.ToUpper(string(req.Status)))
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Status))
	}
	fir, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	id = fir.ID
	if err := policy.Decide(principal, policy.ActionOverrideFIR, fir); err != nil {
		return nil, err
	}
	previous := fir.Status
	now := s.now().UTC()

	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if err := s.firs.SetStatus(ctx, q, id, target, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errFIRNotFound
			}
			return nil, err
		}
		return auditEntry(actorOf(principal), models.AuditActionFIRStatusChange, models.EntityFIR, id,
			fmt.Sprintf("%s set fir status to %s", principal.Username(), target),
			fmt.Sprintf("administrative override %s -> %s", previous, target)), nil
	})
	if err != nil {
		s.metrics.RecordTransition(target, transitionOutcome(err))
		return nil, domainOrInternal(err, "failed to override fir status")
	}
	s.metrics.RecordTransition(target, OutcomeSuccess)
	s.metrics.RecordAudit(entry.Action)
	s.invalidateDashboards(ctx)

	fir.Status = target
	fir.UpdatedAt = now
	return fir, nil
}

// Get returns a FIR the caller may see. Out-of-scope FIRs are reported missing.
func (s *FIRService) Get(ctx context.Context, principal models.Principal, id string) (*models.FIR, error) {
	if !principal.Authenticated() {
		return nil, appErrors.ErrUnauthorized
	}
	fir, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Decide(principal, policy.ActionReadFIR, fir); err != nil {
		return nil, err
	}
	return fir, nil
}

// Query lists the FIRs visible to the caller. The visibility restriction is
// applied before, and regardless of, any filter the caller supplies.
func (s *FIRService) Query(ctx context.Context, principal models.Principal, query dto.FIRQuery) ([]models.FIR, *models.Pagination, error) {
	filter, err := s.scopedFilter(principal, query)
	if err != nil {
		return nil, nil, err
	}
	page, size, _ := models.NormalizePage(query.Page, query.PageSize)
	filter.Page, filter.PageSize = page, size

	firs, total, err := s.firs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list firs")
	}
	return firs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Delete removes a FIR as an administrative action.
func (s *FIRService) Delete(ctx context.Context, principal models.Principal, id string) error {
	if !principal.Authenticated() {
		return appErrors.ErrUnauthorized
	}
	fir, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	id = fir.ID
	if err := policy.Decide(principal, policy.ActionDeleteFIR, fir); err != nil {
		return err
	}
	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if err := s.firs.Delete(ctx, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errFIRNotFound
			}
			return nil, err
		}
		return auditEntry(actorOf(principal), models.AuditActionFIRDeleted, models.EntityFIR, id,
			fmt.Sprintf("%s deleted fir", principal.Username()),
			fmt.Sprintf("%s report filed %s, status %s", fir.CrimeType, fir.CreatedAt.Format(time.RFC3339), fir.Status)), nil
	})
	if err != nil {
		return domainOrInternal(err, "failed to delete fir")
	}
	s.metrics.RecordAudit(entry.Action)
	s.invalidateDashboards(ctx)
	if s.purger != nil && fir.EvidenceRef != nil {
		s.purger.Schedule(*fir.EvidenceRef)
	}
	return nil
}

var registerColumns = []export.Column{
	{Key: "id", Title: "ID", Weight: 2.2},
	{Key: "created_at", Title: "Filed", Weight: 1.4},
	{Key: "station_id", Title: "Station", Weight: 2.2},
	{Key: "crime_type", Title: "Crime", Weight: 1.2},
	{Key: "name", Title: "Complainant", Weight: 1.5},
	{Key: "age", Title: "Age", Weight: 0.5},
	{Key: "phone", Title: "Phone", Weight: 1.1},
	{Key: "accused", Title: "Accused", Weight: 1.8},
	{Key: "status", Title: "Status", Weight: 1.1},
}

// Export renders the caller's visible FIRs as CSV or PDF.
func (s *FIRService) Export(ctx context.Context, principal models.Principal, query dto.FIRQuery, format dto.ExportFormat) (*dto.ExportFile, error) {
	if err := policy.Decide(principal, policy.ActionExportFIRs, nil); err != nil {
		return nil, err
	}
	filter, err := s.scopedFilter(principal, query)
	if err != nil {
		return nil, err
	}
	firs, err := s.firs.ListAll(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load firs")
	}

	data := export.Dataset{Columns: registerColumns, Rows: make([]map[string]string, 0, len(firs))}
	for _, fir := range firs {
		data.Rows = append(data.Rows, map[string]string{
			"id":         fir.ID,
			"created_at": fir.CreatedAt.UTC().Format("2006-01-02 15:04"),
			"station_id": fir.StationID,
			"crime_type": fir.CrimeType,
			"name":       fir.ComplainantName,
			"age":        strconv.Itoa(fir.ComplainantAge),
			"phone":      fir.ComplainantPhone,
			"accused":    fir.Accused,
			"status":     string(fir.Status),
		})
	}

	stamp := s.now().UTC().Format("20060102-150405")
	switch format {
	case dto.ExportFormatCSV, "":
		content, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render csv")
		}
		return &dto.ExportFile{Filename: "fir-register-" + stamp + ".csv", ContentType: "text/csv", Content: content}, nil
	case dto.ExportFormatPDF:
		content, err := s.pdf.Render(data, "FIR Register")
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render pdf")
		}
		return &dto.ExportFile{Filename: "fir-register-" + stamp + ".pdf", ContentType: "application/pdf", Content: content}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
}

// scopedFilter checks the requested scope against the caller's role and
// narrows the filter to what the caller may see.
func (s *FIRService) scopedFilter(principal models.Principal, query dto.FIRQuery) (models.FIRFilter, error) {
	if !principal.Authenticated() {
		return models.FIRFilter{}, appErrors.ErrUnauthorized
	}
	if query.Scope != "" && query.Scope != defaultScope(principal) {
		return models.FIRFilter{}, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("scope %q is not available to %s", query.Scope, principal.Role()))
	}
	stationID := strings.TrimSpace(query.StationID)
	if stationID != "" {
		key, ok := canonicalID(stationID)
		if !ok {
			return models.FIRFilter{}, appErrors.Clone(appErrors.ErrValidation, "station_id must be a UUID")
		}
		stationID = key
	}
	filter := models.FIRFilter{
		StationID: stationID,
		CrimeType: strings.TrimSpace(query.CrimeType),
		Search:    strings.TrimSpace(query.Search),
	}
	if query.Status != "" {
		status := models.FIRStatus(strings.ToUpper(strings.TrimSpace(query.Status)))
		if !status.Valid() {
			return models.FIRFilter{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", query.Status))
		}
		filter.Status = &status
	}
	scoped, ok := policy.Visibility(principal, filter)
	if !ok {
		return models.FIRFilter{}, appErrors.ErrForbidden
	}
	return scoped, nil
}

func defaultScope(principal models.Principal) dto.FIRScope {
	switch principal.Role() {
	case models.RoleAdmin:
		return dto.FIRScopeAll
	case models.RolePolice:
		return dto.FIRScopeStation
	}
	return dto.FIRScopeMine
}

// load reads a FIR; ids that are not UUIDs cannot exist and report NotFound.
func (s *FIRService) load(ctx context.Context, id string) (*models.FIR, error) {
	key, ok := canonicalID(id)
	if !ok {
		return nil, errFIRNotFound
	}
	fir, err := s.firs.FindByID(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errFIRNotFound
		}
		return nil, appErrors.Internal(err, "failed to load fir")
	}
	return fir, nil
}

func (s *FIRService) invalidateDashboards(ctx context.Context) {
	s.cache.Invalidate(ctx, cache.Key(dashboardCacheNamespace, "*"))
}

// domainOrInternal passes typed errors through and hides everything else.
func domainOrInternal(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, message)
}

func transitionOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case appErrors.HasCode(err, appErrors.ErrConflict):
		return OutcomeConflict
	case appErrors.HasCode(err, appErrors.ErrForbidden), appErrors.HasCode(err, appErrors.ErrUnauthorized):
		return OutcomeForbidden
	case appErrors.HasCode(err, appErrors.ErrNotFound):
		return OutcomeNotFound
	}
	return OutcomeError
}
