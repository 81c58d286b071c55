package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repositories. InTx
// serialises transactions and restores a snapshot when fn fails, which gives
// the same all-or-nothing pairing the SQL implementation has.
type memStore struct {
	txMu sync.Mutex

	mu       sync.Mutex
	users    map[string]models.User
	stations map[string]models.Station
	firs     map[string]models.FIR
	audit    []models.AuditLog
	nextID   int64
	seq      int64
	failures map[string]error
	base     time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]models.User),
		stations: make(map[string]models.Station),
		firs:     make(map[string]models.FIR),
		failures: make(map[string]error),
		base:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// uuidColumn mirrors Postgres rejecting non-UUID text compared to a UUID column.
func uuidColumn(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"}
	}
	return nil
}

func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// failure must be called with mu held.
func (s *memStore) failure(op string) error {
	return s.failures[op]
}

// tick must be called with mu held.
func (s *memStore) tick() time.Time {
	s.seq++
	return s.base.Add(time.Duration(s.seq) * time.Second)
}

func (s *memStore) entries() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditLog, len(s.audit))
	copy(out, s.audit)
	return out
}

func (s *memStore) countActions(actions ...models.AuditAction) int {
	want := make(map[models.AuditAction]bool, len(actions))
	for _, a := range actions {
		want[a] = true
	}
	total := 0
	for _, e := range s.entries() {
		if want[e.Action] {
			total++
		}
	}
	return total
}

func (s *memStore) fir(id string) models.FIR {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firs[id]
}

func (s *memStore) addStation(code string) models.Station {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	station := models.Station{ID: uuid.NewString(), Code: code, Name: "Station " + code, City: "Pune", State: "MH", CreatedAt: now, UpdatedAt: now}
	s.stations[station.ID] = station
	return station
}

func (s *memStore) addUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Email == "" {
		u.Email = strings.ToLower(u.Username) + "@example.com"
	}
	u.CreatedAt = s.tick()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	return u
}

type memSnapshot struct {
	users    map[string]models.User
	stations map[string]models.Station
	firs     map[string]models.FIR
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		users:    make(map[string]models.User, len(s.users)),
		stations: make(map[string]models.Station, len(s.stations)),
		firs:     make(map[string]models.FIR, len(s.firs)),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.stations {
		snap.stations[k] = v
	}
	for k, v := range s.firs {
		snap.firs[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users, s.stations, s.firs = snap.users, snap.stations, snap.firs
}

// memAudit implements auditWriter and auditReader.
type memAudit struct{ s *memStore }

func (a memAudit) InTx(ctx context.Context, fn repository.AuditTxFunc) (*models.AuditLog, error) {
	a.s.txMu.Lock()
	defer a.s.txMu.Unlock()

	snap := a.s.snapshot()
	entry, err := fn(ctx, nil)
	if err == nil && entry == nil {
		err = repository.ErrAuditEntryMissing
	}
	if err == nil {
		a.s.mu.Lock()
		err = a.s.failure("audit.append")
		a.s.mu.Unlock()
	}
	if err != nil {
		a.s.restore(snap)
		return nil, err
	}

	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.nextID++
	entry.ID = a.s.nextID
	entry.CreatedAt = a.s.tick()
	a.s.audit = append(a.s.audit, *entry)
	return entry, nil
}

func (a memAudit) Recent(_ context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	limit := repository.ClampAuditLimit(filter.Limit)
	var out []models.AuditLog
	for i := len(a.s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := a.s.audit[i]
		if filter.ActorID != "" && (e.ActorID == nil || *e.ActorID != filter.ActorID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// memUsers implements the user repository contracts.
type memUsers struct{ s *memStore }

func (r memUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	if err := uuidColumn(id); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (r memUsers) ExistingIdentities(_ context.Context, usernames, emails []string) (map[string]bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := make(map[string]bool)
	for _, v := range usernames {
		wanted[v] = true
	}
	for _, v := range emails {
		wanted[v] = true
	}
	taken := make(map[string]bool)
	for _, u := range r.s.users {
		if wanted[u.Username] || wanted[u.Email] {
			taken[strings.ToLower(u.Username)] = true
			taken[strings.ToLower(u.Email)] = true
		}
	}
	return taken, nil
}

func (r memUsers) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []models.User
	for _, u := range r.s.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.StationID != "" && (u.StationID == nil || *u.StationID != filter.StationID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(u.Username+" "+u.Email), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Username < matched[j].Username })
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)
	return pageOf(matched, offset, size), len(matched), nil
}

func (r memUsers) Count(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.users), nil
}

func (r memUsers) Create(_ context.Context, _ sqlx.ExtContext, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("user.create"); err != nil {
		return err
	}
	for _, u := range r.s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return fmt.Errorf("create user %s: %w", user.Username, repository.ErrDuplicate)
		}
	}
	if user.StationID != nil {
		if _, ok := r.s.stations[*user.StationID]; !ok {
			return fmt.Errorf("create user: station missing")
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = r.s.tick()
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = *user
	return nil
}

func (r memUsers) update(id string, fn func(u *models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	fn(&u)
	r.s.users[id] = u
	return nil
}

func (r memUsers) UpdateLastLogin(_ context.Context, _ sqlx.ExtContext, id string, ts time.Time) error {
	return r.update(id, func(u *models.User) { u.LastLogin = &ts })
}

func (r memUsers) UpdatePassword(_ context.Context, _ sqlx.ExtContext, id, hash string, updatedAt time.Time) error {
	return r.update(id, func(u *models.User) {
		u.PasswordHash = hash
		u.UpdatedAt = updatedAt
	})
}

func (r memUsers) UpdateProfile(_ context.Context, _ sqlx.ExtContext, id string, update models.UserProfileUpdate, updatedAt time.Time) error {
	r.s.mu.Lock()
	if update.Email != nil {
		for otherID, u := range r.s.users {
			if otherID != id && u.Email == *update.Email {
				r.s.mu.Unlock()
				return repository.ErrDuplicate
			}
		}
	}
	r.s.mu.Unlock()
	return r.update(id, func(u *models.User) {
		if update.Email != nil {
			u.Email = *update.Email
		}
		if update.Phone != nil {
			u.Phone = update.Phone
		}
		if update.ProfilePicRef != nil {
			u.ProfilePicRef = update.ProfilePicRef
		}
		u.UpdatedAt = updatedAt
	})
}

func (r memUsers) Delete(_ context.Context, _ sqlx.ExtContext, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return sql.ErrNoRows
	}
	for _, f := range r.s.firs {
		if f.FilerID == id {
			return repository.ErrInUse
		}
	}
	delete(r.s.users, id)
	return nil
}

// memStations implements the station repository contracts.
type memStations struct{ s *memStore }

func (r memStations) List(_ context.Context) ([]models.Station, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Station, 0, len(r.s.stations))
	for _, st := range r.s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r memStations) FindByID(_ context.Context, id string) (*models.Station, error) {
	if err := uuidColumn(id); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &st, nil
}

func (r memStations) FindByCode(_ context.Context, code string) (*models.Station, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, st := range r.s.stations {
		if st.Code == code {
			st := st
			return &st, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memStations) Count(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.stations), nil
}

func (r memStations) Create(_ context.Context, _ sqlx.ExtContext, station *models.Station) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, st := range r.s.stations {
		if st.Code == station.Code {
			return repository.ErrDuplicate
		}
	}
	if station.ID == "" {
		station.ID = uuid.NewString()
	}
	station.CreatedAt = r.s.tick()
	station.UpdatedAt = station.CreatedAt
	r.s.stations[station.ID] = *station
	return nil
}

func (r memStations) Update(_ context.Context, _ sqlx.ExtContext, station *models.Station) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.stations[station.ID]; !ok {
		return sql.ErrNoRows
	}
	for id, st := range r.s.stations {
		if id != station.ID && st.Code == station.Code {
			return repository.ErrDuplicate
		}
	}
	station.UpdatedAt = r.s.tick()
	r.s.stations[station.ID] = *station
	return nil
}

func (r memStations) Delete(_ context.Context, _ sqlx.ExtContext, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.stations[id]; !ok {
		return sql.ErrNoRows
	}
	for _, u := range r.s.users {
		if u.StationID != nil && *u.StationID == id {
			return repository.ErrInUse
		}
	}
	for _, f := range r.s.firs {
		if f.StationID == id {
			return repository.ErrInUse
		}
	}
	delete(r.s.stations, id)
	return nil
}

// memFIRs implements the FIR repository contracts.
type memFIRs struct{ s *memStore }

func (r memFIRs) Create(_ context.Context, _ sqlx.ExtContext, fir *models.FIR) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("fir.create"); err != nil {
		return err
	}
	if _, ok := r.s.stations[fir.StationID]; !ok {
		return fmt.Errorf("create fir: %w", sql.ErrNoRows)
	}
	if fir.EvidenceRef != nil {
		for _, existing := range r.s.firs {
			if existing.EvidenceRef != nil && *existing.EvidenceRef == *fir.EvidenceRef {
				return fmt.Errorf("create fir: %w", repository.ErrDuplicate)
			}
		}
	}
	if fir.ID == "" {
		fir.ID = uuid.NewString()
	}
	fir.CreatedAt = r.s.tick()
	fir.UpdatedAt = fir.CreatedAt
	r.s.firs[fir.ID] = *fir
	return nil
}

func (r memFIRs) FindByID(ctx context.Context, id string) (*models.FIR, error) {
	return r.FindByIDWith(ctx, nil, id)
}

func (r memFIRs) FindByIDWith(_ context.Context, _ sqlx.QueryerContext, id string) (*models.FIR, error) {
	if err := uuidColumn(id); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.firs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &f, nil
}

func (r memFIRs) CompareAndSetStatus(_ context.Context, _ sqlx.ExtContext, p repository.CompareAndSetStatusParams) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("fir.cas"); err != nil {
		return err
	}
	f, ok := r.s.firs[p.ID]
	if !ok || f.StationID != p.StationID || f.Status != p.From {
		return sql.ErrNoRows
	}
	f.Status = p.To
	if p.Note != nil {
		f.DecisionNote = p.Note
	}
	f.UpdatedAt = p.UpdatedAt
	r.s.firs[p.ID] = f
	return nil
}

func (r memFIRs) SetStatus(_ context.Context, _ sqlx.ExtContext, id string, status models.FIRStatus, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.firs[id]
	if !ok {
		return sql.ErrNoRows
	}
	f.Status = status
	f.UpdatedAt = updatedAt
	r.s.firs[id] = f
	return nil
}

func (r memFIRs) Delete(_ context.Context, _ sqlx.ExtContext, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.firs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.s.firs, id)
	return nil
}

func (r memFIRs) match(filter models.FIRFilter) []models.FIR {
	var out []models.FIR
	for _, f := range r.s.firs {
		switch {
		case filter.FilerID != "" && f.FilerID != filter.FilerID,
			filter.StationID != "" && f.StationID != filter.StationID,
			filter.Status != nil && f.Status != *filter.Status,
			filter.CrimeType != "" && f.CrimeType != filter.CrimeType:
			continue
		}
		if filter.Search != "" {
			haystack := strings.ToLower(f.Accused + " " + f.ComplainantName + " " + f.Purpose)
			if !strings.Contains(haystack, strings.ToLower(filter.Search)) {
				continue
			}
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r memFIRs) List(_ context.Context, filter models.FIRFilter) ([]models.FIR, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	matched := r.match(filter)
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)
	return pageOf(matched, offset, size), len(matched), nil
}

func (r memFIRs) ListAll(_ context.Context, filter models.FIRFilter) ([]models.FIR, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.match(filter), nil
}

func (r memFIRs) CountByStatus(_ context.Context, filter models.FIRFilter) ([]models.StatusCount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[models.FIRStatus]int)
	for _, f := range r.match(filter) {
		counts[f.Status]++
	}
	var out []models.StatusCount
	for _, status := range models.AllFIRStatuses {
		if counts[status] > 0 {
			out = append(out, models.StatusCount{Status: status, Count: counts[status]})
		}
	}
	return out, nil
}

func pageOf[T any](items []T, offset, size int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + size
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
