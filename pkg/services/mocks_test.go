package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cervixai/screening-engine/pkg/apperrors"
	"github.com/cervixai/screening-engine/pkg/models"
	"github.com/cervixai/screening-engine/pkg/repositories"
)

// passthroughTx satisfies database.TxRunner without a real database. The
// in-memory mocks below are already atomic per call, so running the function
// directly is enough for service-level tests.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockPatientRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*models.Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*models.Patient)}
}

var _ repositories.PatientRepository = (*mockPatientRepo)(nil)

func (m *mockPatientRepo) Create(_ context.Context, p *models.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Entity: "patient", ID: id.String()}
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) GetByMRN(_ context.Context, mrn string) (*models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.MedicalRecordNumber == mrn {
			cp := *p
			return &cp, nil
		}
	}
	return nil, &apperrors.NotFoundError{Entity: "patient", ID: mrn}
}

type mockCaseRepo struct {
	mu    sync.Mutex
	cases map[uuid.UUID]*models.Case
}

func newMockCaseRepo() *mockCaseRepo {
	return &mockCaseRepo{cases: make(map[uuid.UUID]*models.Case)}
}

var _ repositories.CaseRepository = (*mockCaseRepo)(nil)

func (m *mockCaseRepo) Create(_ context.Context, c *models.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Version = 1
	cp := *c
	m.cases[c.ID] = &cp
	return nil
}

func (m *mockCaseRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Entity: "case", ID: id.String()}
	}
	cp := *c
	return &cp, nil
}

func (m *mockCaseRepo) Update(_ context.Context, c *models.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.cases[c.ID]
	if !ok {
		return &apperrors.NotFoundError{Entity: "case", ID: c.ID.String()}
	}
	if stored.Version != c.Version {
		return &apperrors.ConcurrentModificationError{Entity: "case", ID: c.ID.String(), ExpectedVersion: c.Version}
	}
	c.Version++
	cp := *c
	m.cases[c.ID] = &cp
	return nil
}

func (m *mockCaseRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Case
	for _, c := range m.cases {
		if c.PatientID == patientID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockSampleRepo struct {
	mu      sync.Mutex
	samples map[uuid.UUID]*models.Sample
}

func newMockSampleRepo() *mockSampleRepo {
	return &mockSampleRepo{samples: make(map[uuid.UUID]*models.Sample)}
}

var _ repositories.SampleRepository = (*mockSampleRepo)(nil)

func (m *mockSampleRepo) Create(_ context.Context, s *models.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Version = 1
	cp := *s
	m.samples[s.ID] = &cp
	return nil
}

func (m *mockSampleRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.samples[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Entity: "sample", ID: id.String()}
	}
	cp := *s
	return &cp, nil
}

func (m *mockSampleRepo) Update(_ context.Context, s *models.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.samples[s.ID]
	if !ok {
		return &apperrors.NotFoundError{Entity: "sample", ID: s.ID.String()}
	}
	if stored.Version != s.Version {
		return &apperrors.ConcurrentModificationError{Entity: "sample", ID: s.ID.String(), ExpectedVersion: s.Version}
	}
	s.Version++
	cp := *s
	m.samples[s.ID] = &cp
	return nil
}

func (m *mockSampleRepo) ListByCase(_ context.Context, caseID uuid.UUID) ([]*models.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Sample
	for _, s := range m.samples {
		if s.CaseID == caseID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockResultRepo struct {
	mu      sync.Mutex
	results map[uuid.UUID]*models.AIResult
}

func newMockResultRepo() *mockResultRepo {
	return &mockResultRepo{results: make(map[uuid.UUID]*models.AIResult)}
}

var _ repositories.ResultRepository = (*mockResultRepo)(nil)

func (m *mockResultRepo) Create(_ context.Context, r *models.AIResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	cp := *r
	m.results[r.ID] = &cp
	return nil
}

func (m *mockResultRepo) GetByID(_ context.Context, id uuid.UUID) (*models.AIResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Entity: "ai_result", ID: id.String()}
	}
	cp := *r
	return &cp, nil
}

func (m *mockResultRepo) ListBySample(_ context.Context, sampleID uuid.UUID) ([]*models.AIResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AIResult
	for _, r := range m.results {
		if r.SampleID == sampleID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockResultRepo) GetLatestBySample(_ context.Context, sampleID uuid.UUID) (*models.AIResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.AIResult
	for _, r := range m.results {
		if r.SampleID != sampleID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, &apperrors.NotFoundError{Entity: "ai_result", ID: sampleID.String()}
	}
	cp := *latest
	return &cp, nil
}

type mockAnnotationRepo struct {
	mu          sync.Mutex
	annotations map[uuid.UUID]*models.Annotation

	// CountSignedForCase walks annotation → result → sample → case the way
	// the SQL join does, so the mock needs the neighboring stores.
	results *mockResultRepo
	samples *mockSampleRepo
}

func newMockAnnotationRepo(results *mockResultRepo, samples *mockSampleRepo) *mockAnnotationRepo {
	return &mockAnnotationRepo{
		annotations: make(map[uuid.UUID]*models.Annotation),
		results:     results,
		samples:     samples,
	}
}

var _ repositories.AnnotationRepository = (*mockAnnotationRepo)(nil)

func (m *mockAnnotationRepo) Create(_ context.Context, a *models.Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Version = 1
	a.CreatedAt = time.Now().UTC()
	cp := *a
	m.annotations[a.ID] = &cp
	return nil
}

func (m *mockAnnotationRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Annotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.annotations[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Entity: "annotation", ID: id.String()}
	}
	cp := *a
	return &cp, nil
}

func (m *mockAnnotationRepo) Update(_ context.Context, a *models.Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.annotations[a.ID]
	if !ok {
		return &apperrors.NotFoundError{Entity: "annotation", ID: a.ID.String()}
	}
	if stored.Version != a.Version {
		return &apperrors.ConcurrentModificationError{Entity: "annotation", ID: a.ID.String(), ExpectedVersion: a.Version}
	}
	a.Version++
	cp := *a
	m.annotations[a.ID] = &cp
	return nil
}

func (m *mockAnnotationRepo) ListByResult(_ context.Context, resultID uuid.UUID) ([]*models.Annotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Annotation
	for _, a := range m.annotations {
		if a.ResultID == resultID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAnnotationRepo) ListPendingByClinician(_ context.Context, clinicianID uuid.UUID) ([]*models.Annotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Annotation
	for _, a := range m.annotations {
		if a.ClinicianID == clinicianID && !a.SignedOff {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAnnotationRepo) CountSignedForCase(ctx context.Context, caseID uuid.UUID) (int, error) {
	m.mu.Lock()
	signed := make([]uuid.UUID, 0)
	for _, a := range m.annotations {
		if a.SignedOff {
			signed = append(signed, a.ResultID)
		}
	}
	m.mu.Unlock()

	count := 0
	for _, resultID := range signed {
		result, err := m.results.GetByID(ctx, resultID)
		if err != nil {
			continue
		}
		sample, err := m.samples.GetByID(ctx, result.SampleID)
		if err != nil {
			continue
		}
		if sample.CaseID == caseID {
			count++
		}
	}
	return count, nil
}

type mockAuditRepo struct {
	mu        sync.Mutex
	entries   []*models.AuditEntry
	appendErr error
}

func newMockAuditRepo() *mockAuditRepo {
	return &mockAuditRepo{}
}

var _ repositories.AuditRepository = (*mockAuditRepo)(nil)

func (m *mockAuditRepo) Append(_ context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = models.SeverityInfo
	}
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockAuditRepo) Query(_ context.Context, filters models.AuditFilters) (*models.AuditPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if filters.Action != "" && e.Action != filters.Action {
			continue
		}
		if filters.ResourceType != "" && e.ResourceType != filters.ResourceType {
			continue
		}
		if filters.ResourceID != nil && (e.ResourceID == nil || *e.ResourceID != *filters.ResourceID) {
			continue
		}
		if filters.ActorID != nil && (e.ActorID == nil || *e.ActorID != *filters.ActorID) {
			continue
		}
		if filters.Severity != "" && e.Severity != filters.Severity {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if filters.Limit > 0 && len(out) >= filters.Limit {
			break
		}
	}
	return &models.AuditPage{Entries: out}, nil
}

func (m *mockAuditRepo) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*models.AuditEntry
	var purged int64
	for _, e := range m.entries {
		if e.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return purged, nil
}

// count returns how many ledger entries carry the given action.
func (m *mockAuditRepo) count(action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

func (m *mockAuditRepo) last(action string) *models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Action == action {
			return m.entries[i]
		}
	}
	return nil
}

type mockRoleRepo struct {
	mu    sync.Mutex
	roles map[string]*models.Role
}

func newMockRoleRepo() *mockRoleRepo {
	return &mockRoleRepo{roles: make(map[string]*models.Role)}
}

var _ repositories.RoleRepository = (*mockRoleRepo)(nil)

func (m *mockRoleRepo) Upsert(_ context.Context, role *models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	cp := *role
	m.roles[role.Name] = &cp
	return nil
}

func (m *mockRoleRepo) GetByName(_ context.Context, name string) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[name]
	if !ok {
		return nil, &apperrors.NotFoundError{Entity: "role", ID: name}
	}
	cp := *role
	return &cp, nil
}

func (m *mockRoleRepo) List(_ context.Context) ([]*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Role
	for _, role := range m.roles {
		cp := *role
		out = append(out, &cp)
	}
	return out, nil
}
