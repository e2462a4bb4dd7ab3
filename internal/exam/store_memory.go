package exam

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryStore struct {
	mu          sync.RWMutex
	assessments map[string][]Assessment // id -> versions, oldest first
	attempts    map[string]Attempt
}

// NewInMemoryStore returns a Store kept entirely in process memory.
func NewInMemoryStore() Store {
	return &memoryStore{
		assessments: map[string][]Assessment{},
		attempts:    map[string]Attempt{},
	}
}

func (m *memoryStore) PutAssessment(_ context.Context, a Assessment) (Assessment, error) {
	if err := a.Validate(); err != nil {
		return Assessment{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Version = len(m.assessments[a.ID]) + 1
	a.CreatedAt = time.Now().Unix()
	m.assessments[a.ID] = append(m.assessments[a.ID], cloneAssessment(a))
	return cloneAssessment(a), nil
}

func (m *memoryStore) GetAssessment(_ context.Context, id string) (Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.assessments[id]
	if len(vs) == 0 {
		return Assessment{}, ErrAssessmentNotFound
	}
	return cloneAssessment(vs[len(vs)-1]), nil
}

func (m *memoryStore) GetAssessmentVersion(_ context.Context, id string, version int) (Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.assessments[id]
	if version < 1 || version > len(vs) {
		return Assessment{}, fmt.Errorf("%w: %s v%d", ErrAssessmentNotFound, id, version)
	}
	return cloneAssessment(vs[version-1]), nil
}

func (m *memoryStore) ListAssessments(_ context.Context, opts ListOpts) ([]AssessmentSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(opts.Q))
	out := []AssessmentSummary{}
	for _, vs := range m.assessments {
		latest := vs[len(vs)-1]
		if q != "" && !strings.Contains(strings.ToLower(latest.Title), q) {
			continue
		}
		out = append(out, summarize(latest))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assessments[a.AssessmentID]; !ok {
		return Attempt{}, ErrAssessmentNotFound
	}
	for _, x := range m.attempts {
		if x.AssessmentID != a.AssessmentID || x.LearnerID != a.LearnerID {
			continue
		}
		if x.Status == StatusInProgress || x.AttemptNumber == a.AttemptNumber {
			return Attempt{}, ErrAttemptAlreadyInProgress
		}
	}
	a.Version = 1
	m.attempts[a.ID] = a.Clone()
	return a.Clone(), nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a.Clone(), nil
}

func (m *memoryStore) UpdateAttempt(_ context.Context, a Attempt) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.attempts[a.ID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if cur.Version != a.Version {
		return Attempt{}, ErrVersionConflict
	}
	a.Version++
	m.attempts[a.ID] = a.Clone()
	return a.Clone(), nil
}

func (m *memoryStore) ListAttempts(_ context.Context, f AttemptFilter) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if f.match(a) {
			out = append(out, a.Clone())
		}
	}
	SortNewestFirst(out)
	return page(out, f.Limit, f.Offset), nil
}

func (m *memoryStore) CountAttempts(_ context.Context, assessmentID, learnerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.attempts {
		if a.AssessmentID == assessmentID && a.LearnerID == learnerID {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) ListOpenTimed(_ context.Context) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if a.Status == StatusInProgress && a.Deadline != nil {
			out = append(out, a.Clone())
		}
	}
	SortNewestFirst(out)
	return out, nil
}

// SortNewestFirst orders attempts by start time, newest first, breaking ties
// on attempt number and id so listings are stable.
func SortNewestFirst(as []Attempt) {
	sort.SliceStable(as, func(i, j int) bool {
		if !as[i].StartedAt.Equal(as[j].StartedAt) {
			return as[i].StartedAt.After(as[j].StartedAt)
		}
		if as[i].AttemptNumber != as[j].AttemptNumber {
			return as[i].AttemptNumber > as[j].AttemptNumber
		}
		return as[i].ID > as[j].ID
	})
}

func page[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return []T{}
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func cloneAssessment(a Assessment) Assessment {
	out := a
	out.Questions = make([]Question, len(a.Questions))
	for i, q := range a.Questions {
		q.Options = append([]Option(nil), q.Options...)
		q.AcceptedAnswers = append([]string(nil), q.AcceptedAnswers...)
		if q.Rubric != nil {
			r := *q.Rubric
			r.Criteria = append([]Criterion(nil), r.Criteria...)
			q.Rubric = &r
		}
		out.Questions[i] = q
	}
	if a.TimeLimitSec != nil {
		v := *a.TimeLimitSec
		out.TimeLimitSec = &v
	}
	return out
}
