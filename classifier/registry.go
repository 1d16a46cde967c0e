package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"voicelegal-backend/logging"
	"voicelegal-backend/models"

	"golang.org/x/sync/singleflight"
)

// ErrInvalidCaseType is returned when a definition violates a registry invariant
var ErrInvalidCaseType = errors.New("invalid case type definition")

// CaseTypeSource loads the active case-type definitions with their questions
type CaseTypeSource interface {
	ListActive(ctx context.Context) ([]models.CaseTypeDefinition, error)
}

// Snapshot is an immutable view of the active case types and the TF-IDF
// space fitted over them. Readers may share a snapshot across goroutines.
type Snapshot struct {
	caseTypes  []*models.CaseTypeDefinition
	byID       map[int64]*models.CaseTypeDefinition
	byName     map[string]*models.CaseTypeDefinition
	keywords   [][]string
	space      *VectorSpace
	docVectors []sparseVector
	builtAt    time.Time
}

// NewSnapshot validates defs, keeps the active ones and fits the vector space
// over one keyword document per case type.
func NewSnapshot(defs []models.CaseTypeDefinition) (*Snapshot, error) {
	s := &Snapshot{
		byID:    make(map[int64]*models.CaseTypeDefinition),
		byName:  make(map[string]*models.CaseTypeDefinition),
		builtAt: time.Now(),
	}

	for i := range defs {
		if !defs[i].IsActive {
			continue
		}
		def, err := copyDefinition(defs[i])
		if err != nil {
			return nil, err
		}
		name := strings.ToLower(def.Name)
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidCaseType, def.Name)
		}
		if _, dup := s.byID[def.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidCaseType, def.ID)
		}
		s.byID[def.ID] = def
		s.byName[name] = def
		s.caseTypes = append(s.caseTypes, def)
	}

	sort.SliceStable(s.caseTypes, func(i, j int) bool {
		return Outranks(s.caseTypes[i], s.caseTypes[j])
	})

	docs := make([]string, len(s.caseTypes))
	s.keywords = make([][]string, len(s.caseTypes))
	for i, ct := range s.caseTypes {
		docs[i] = strings.Join(ct.Keywords, " ")
		normalized := make([]string, len(ct.Keywords))
		for k, kw := range ct.Keywords {
			normalized[k] = Normalize(kw)
		}
		s.keywords[i] = normalized
	}
	s.space = FitVectorSpace(docs)
	s.docVectors = make([]sparseVector, len(docs))
	for i, doc := range docs {
		s.docVectors[i] = s.space.Transform(doc)
	}

	return s, nil
}

// copyDefinition deep-copies a definition, deduplicating keywords and
// ordering questions by their index.
func copyDefinition(src models.CaseTypeDefinition) (*models.CaseTypeDefinition, error) {
	def := src
	if strings.TrimSpace(def.Name) == "" {
		return nil, fmt.Errorf("%w: case type %d has no name", ErrInvalidCaseType, def.ID)
	}
	if def.ConfidenceThreshold < 0 || def.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("%w: %s threshold %.2f outside [0,1]", ErrInvalidCaseType, def.Name, def.ConfidenceThreshold)
	}

	seen := make(map[string]struct{})
	def.Keywords = nil
	for _, kw := range src.Keywords {
		key := Normalize(kw)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		def.Keywords = append(def.Keywords, strings.TrimSpace(kw))
	}
	if len(def.Keywords) == 0 {
		return nil, fmt.Errorf("%w: active case type %s has no keywords", ErrInvalidCaseType, def.Name)
	}

	def.Questions = append([]models.QuestionDefinition(nil), src.Questions...)
	sort.SliceStable(def.Questions, func(i, j int) bool {
		return def.Questions[i].Order < def.Questions[j].Order
	})
	if err := checkDenseOrder(def.Name, def.Questions); err != nil {
		return nil, err
	}
	for i := range def.Questions {
		q := &def.Questions[i]
		q.ValidationRules.Options = append([]string(nil), q.ValidationRules.Options...)
	}

	return &def, nil
}

// checkDenseOrder requires question indices to be 0..N-1 or 1..N.
func checkDenseOrder(name string, questions []models.QuestionDefinition) error {
	if len(questions) == 0 {
		return nil
	}
	base := questions[0].Order
	if base != 0 && base != 1 {
		return fmt.Errorf("%w: %s question order starts at %d", ErrInvalidCaseType, name, base)
	}
	for i, q := range questions {
		if q.Order != base+i {
			return fmt.Errorf("%w: %s question order is not dense at %q", ErrInvalidCaseType, name, q.Question)
		}
	}
	return nil
}

// Outranks reports whether a wins a tie against b: higher priority, then lower id.
func Outranks(a, b *models.CaseTypeDefinition) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}

// CaseTypes returns the active case types ordered by priority.
func (s *Snapshot) CaseTypes() []*models.CaseTypeDefinition {
	return s.caseTypes
}

// Names returns the active case-type names ordered by priority.
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.caseTypes))
	for i, ct := range s.caseTypes {
		names[i] = ct.Name
	}
	return names
}

// ByID looks up an active case type.
func (s *Snapshot) ByID(id int64) (*models.CaseTypeDefinition, bool) {
	ct, ok := s.byID[id]
	return ct, ok
}

// ByName looks up an active case type by exact case-insensitive name.
func (s *Snapshot) ByName(name string) (*models.CaseTypeDefinition, bool) {
	ct, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	return ct, ok
}

// Len returns the number of active case types.
func (s *Snapshot) Len() int {
	return len(s.caseTypes)
}

// BuiltAt returns when the snapshot was built.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Registry publishes case-type snapshots. A refresh builds a new snapshot and
// swaps it in atomically; in-flight detections keep the one they loaded.
type Registry struct {
	source  CaseTypeSource
	current atomic.Pointer[Snapshot]
	group   singleflight.Group
	logger  *slog.Logger
}

// NewRegistry creates a registry with an empty snapshot
func NewRegistry(source CaseTypeSource) *Registry {
	r := &Registry{
		source: source,
		logger: logging.New("registry"),
	}
	empty, _ := NewSnapshot(nil)
	r.current.Store(empty)
	return r
}

// Snapshot returns the current snapshot. It is never nil.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Refresh reloads definitions from the source and publishes a new snapshot.
// Concurrent callers share one reload. On failure the previous snapshot stays live.
func (r *Registry) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := r.group.Do("refresh", func() (interface{}, error) {
		defs, err := r.source.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load case types: %w", err)
		}
		snap, err := NewSnapshot(defs)
		if err != nil {
			return nil, err
		}
		r.current.Store(snap)
		r.logger.Info("case type registry refreshed",
			"case_types", snap.Len(),
			"vocabulary", snap.space.Size())
		return snap, nil
	})
	if err != nil {
		r.logger.Error("case type registry refresh failed", "error", err)
		return nil, err
	}
	return v.(*Snapshot), nil
}
