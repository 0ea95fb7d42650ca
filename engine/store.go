package engine

import (
	"context"
	"errors"

	"civicgrid-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrVersionConflict is returned by SaveIssue when the issue was modified
// between the read and the write. Callers treat it as retryable.
var ErrVersionConflict = errors.New("issue modified concurrently")

// ErrIssueNotFound is returned when an issue id resolves to nothing.
var ErrIssueNotFound = errors.New("issue not found")

// IssueStore is the persistence capability the engine consumes. Reads are
// snapshot reads; SaveIssue must be a compare-and-swap on (id, version)
// and increment the version on success, so a read-modify-write lost to a
// concurrent writer fails with ErrVersionConflict instead of clobbering.
type IssueStore interface {
	IssueByID(ctx context.Context, id primitive.ObjectID) (*models.Issue, error)
	OpenIssuesByCategory(ctx context.Context, category models.IssueCategory) ([]models.Issue, error)
	OpenIssues(ctx context.Context) ([]models.Issue, error)
	InsertIssue(ctx context.Context, issue *models.Issue) error
	SaveIssue(ctx context.Context, issue *models.Issue) error
}

// AuthorityStore supplies the candidate pool for assignment: active
// authority accounts of a single department.
type AuthorityStore interface {
	ActiveAuthorities(ctx context.Context, department models.Department) ([]models.User, error)
}
