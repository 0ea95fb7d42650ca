package engine

import (
	"context"
	"sync"
	"time"

	"civicgrid-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// memIssueStore is an in-memory IssueStore with the same compare-and-swap
// save semantics as the Mongo implementation.
type memIssueStore struct {
	mu     sync.Mutex
	issues map[primitive.ObjectID]models.Issue
	saves  int
}

func newMemIssueStore(issues ...models.Issue) *memIssueStore {
	s := &memIssueStore{issues: make(map[primitive.ObjectID]models.Issue)}
	for _, issue := range issues {
		s.issues[issue.ID] = issue
	}
	return s
}

func (s *memIssueStore) IssueByID(_ context.Context, id primitive.ObjectID) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, ErrIssueNotFound
	}
	return &issue, nil
}

func (s *memIssueStore) OpenIssuesByCategory(_ context.Context, category models.IssueCategory) ([]models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Issue
	for _, issue := range s.issues {
		if issue.Category == category && !issue.Status.Terminal() {
			out = append(out, issue)
		}
	}
	return out, nil
}

func (s *memIssueStore) OpenIssues(_ context.Context) ([]models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Issue
	for _, issue := range s.issues {
		if !issue.Status.Terminal() {
			out = append(out, issue)
		}
	}
	return out, nil
}

func (s *memIssueStore) InsertIssue(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	s.issues[issue.ID] = *issue
	return nil
}

func (s *memIssueStore) SaveIssue(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.issues[issue.ID]
	if !ok {
		return ErrIssueNotFound
	}
	if current.Version != issue.Version {
		return ErrVersionConflict
	}
	issue.Version++
	s.issues[issue.ID] = *issue
	s.saves++
	return nil
}

func (s *memIssueStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *memIssueStore) get(id primitive.ObjectID) models.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issues[id]
}

// memAuthorityStore serves a fixed authority pool.
type memAuthorityStore struct {
	authorities []models.User
	err         error
}

func (s *memAuthorityStore) ActiveAuthorities(_ context.Context, department models.Department) ([]models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.User
	for _, a := range s.authorities {
		if a.Role == models.RoleAuthority && a.Active && a.Department == department {
			out = append(out, a)
		}
	}
	return out, nil
}

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(issues *memIssueStore, authorities *memAuthorityStore) *Engine {
	if issues == nil {
		issues = newMemIssueStore()
	}
	if authorities == nil {
		authorities = &memAuthorityStore{}
	}
	e := New(issues, authorities, zap.NewNop().Sugar())
	e.now = func() time.Time { return testNow }
	return e
}

func ptr(f float64) *float64 { return &f }

// offsetLat returns a latitude roughly meters north of lat. One degree of
// latitude spans about 111.32 km everywhere.
func offsetLat(lat, meters float64) float64 {
	return lat + meters/111320.0
}

func testIssue(category models.IssueCategory, lat, lon float64, status models.IssueStatus, createdAt time.Time) models.Issue {
	return models.Issue{
		ID:         primitive.NewObjectID(),
		Title:      "test issue",
		Category:   category,
		Department: models.DepartmentFor(category),
		Priority:   models.PriorityMedium,
		Status:     status,
		Latitude:   ptr(lat),
		Longitude:  ptr(lon),
		CreatedAt:  createdAt,
		Deadline:   ComputeDeadline(models.PriorityMedium, 0, createdAt),
	}
}

func testAuthority(id primitive.ObjectID, department models.Department, active bool, lat, lon *float64) models.User {
	return models.User{
		ID:         id,
		Role:       models.RoleAuthority,
		Department: department,
		Active:     active,
		Latitude:   lat,
		Longitude:  lon,
	}
}
