package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"civicgrid-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// refreshWorkers bounds the per-issue goroutines of the batch overdue
// refresh. Each issue's read-modify-write is independent of the others.
const refreshWorkers = 8

// Engine orchestrates the issue lifecycle: deadline recomputation,
// overdue evaluation, duplicate detection and authority assignment on
// every state-changing event. All recomputation is pure and applied to
// the in-memory issue before a single CAS-guarded save, so a persisted
// issue can never carry a deadline or overdue flag inconsistent with its
// upvote count.
type Engine struct {
	issues      IssueStore
	authorities AuthorityStore
	log         *zap.SugaredLogger

	now func() time.Time // stubbed in tests
}

// New creates an Engine over the given stores.
func New(issues IssueStore, authorities AuthorityStore, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		issues:      issues,
		authorities: authorities,
		log:         logger,
		now:         time.Now,
	}
}

// CreateIssue validates a freshly reported issue, derives its department,
// initial deadline and assignment, and persists it. The caller runs
// FindDuplicate beforehand; its result is advisory and never blocks this
// path. The issue arrives with identity fields set (title, category,
// priority, location, reporter) and leaves fully initialized.
func (e *Engine) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if !models.ValidCategory(string(issue.Category)) {
		return &ValidationError{Field: "category", Reason: "unknown category"}
	}
	if !models.ValidPriority(string(issue.Priority)) {
		return &ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	if issue.HasCoordinates() && !ValidCoordinates(*issue.Latitude, *issue.Longitude) {
		return &ValidationError{Field: "coordinates", Reason: "latitude/longitude out of range"}
	}

	now := e.now()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.Status = models.Pending
	issue.Upvotes = 0
	issue.UpvotedBy = nil
	issue.Department = models.DepartmentFor(issue.Category)
	issue.Deadline = ComputeDeadline(issue.Priority, 0, issue.CreatedAt)
	issue.Overdue = IsOverdue(issue.Deadline, now, issue.Status)
	issue.Version = 0
	issue.UpdatedAt = now

	if issue.HasCoordinates() {
		authority, err := e.AssignNearestAuthority(ctx, issue.Department, *issue.Latitude, *issue.Longitude)
		if err != nil {
			return err
		}
		if authority != nil {
			issue.AssignedTo = &authority.ID
		}
	}

	if err := e.issues.InsertIssue(ctx, issue); err != nil {
		return &DependencyError{Op: "insert issue", Err: err, Retryable: true}
	}

	e.log.Infow("issue created",
		"issue", issue.ID.Hex(), "category", issue.Category,
		"department", issue.Department, "deadline", issue.Deadline,
		"assigned", issue.AssignedTo != nil)
	return nil
}

// ApplyUpvote adds actorID to the distinct upvoter set, tightens the
// deadline accordingly and persists in one write. A second upvote by the
// same actor is rejected with already_upvoted so the caller can offer a
// fresh report instead.
func (e *Engine) ApplyUpvote(ctx context.Context, issueID, actorID primitive.ObjectID) (*models.Issue, error) {
	issue, err := e.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	if issue.HasUpvoted(actorID) {
		return nil, &ConflictError{Code: CodeAlreadyUpvoted, Reason: "issue already upvoted by this user"}
	}

	voters := make([]primitive.ObjectID, 0, len(issue.UpvotedBy)+1)
	voters = append(voters, issue.UpvotedBy...)
	issue.UpvotedBy = append(voters, actorID)
	e.refreshDerived(issue)

	return e.saveIssue(ctx, issue)
}

// ApplyUnupvote removes actorID from the upvoter set, relaxes the
// deadline and persists in one write.
func (e *Engine) ApplyUnupvote(ctx context.Context, issueID, actorID primitive.ObjectID) (*models.Issue, error) {
	issue, err := e.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	if !issue.HasUpvoted(actorID) {
		return nil, &ConflictError{Code: CodeNotUpvoted, Reason: "issue not upvoted by this user"}
	}

	kept := make([]primitive.ObjectID, 0, len(issue.UpvotedBy)-1)
	for _, id := range issue.UpvotedBy {
		if id != actorID {
			kept = append(kept, id)
		}
	}
	issue.UpvotedBy = kept
	e.refreshDerived(issue)

	return e.saveIssue(ctx, issue)
}

// TransitionExtras carries optional admin-supplied data for a status
// change. EstimatedAt is informational only and never affects the
// computed deadline.
type TransitionExtras struct {
	EstimatedAt *time.Time
}

// Transition moves an issue to target if the actor and the state machine
// permit it: admins and the assigned authority drive pending →
// in-progress | resolved | rejected and in-progress → resolved |
// rejected. Terminal states admit no forward transition; the reporter's
// only way back is Reopen. Invalid transitions reject without mutation.
func (e *Engine) Transition(ctx context.Context, issueID, actorID primitive.ObjectID, actorRole models.UserRole, target models.IssueStatus, extras TransitionExtras) (*models.Issue, error) {
	if !models.ValidStatus(string(target)) {
		return nil, &ValidationError{Field: "status", Reason: "unknown status"}
	}

	issue, err := e.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	switch actorRole {
	case models.RoleAdmin:
	case models.RoleAuthority:
		if issue.AssignedTo == nil || *issue.AssignedTo != actorID {
			return nil, &ConflictError{Code: CodeInvalidTransition, Reason: "issue is not assigned to this authority"}
		}
	default:
		return nil, &ConflictError{Code: CodeInvalidTransition, Reason: "reporters may only upvote, comment or reopen"}
	}

	if !transitionAllowed(issue.Status, target) {
		return nil, &ConflictError{Code: CodeInvalidTransition,
			Reason: string(issue.Status) + " -> " + string(target) + " is not a permitted transition"}
	}

	now := e.now()
	issue.Status = target
	switch target {
	case models.Resolved:
		resolved := now
		issue.ResolvedAt = &resolved
	case models.InProgress:
		if extras.EstimatedAt != nil {
			issue.EstimatedAt = extras.EstimatedAt
		}
	}
	e.refreshDerived(issue)

	return e.saveIssue(ctx, issue)
}

// Reopen returns a terminal issue to pending. Only the original reporter
// may reopen, and only from resolved or rejected. Assignment is re-run
// because the original authority may have gone inactive since.
func (e *Engine) Reopen(ctx context.Context, issueID, actorID primitive.ObjectID) (*models.Issue, error) {
	issue, err := e.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	if issue.ReportedBy != actorID {
		return nil, &ConflictError{Code: CodeNotReporter, Reason: "only the original reporter may reopen"}
	}
	if !issue.Status.Terminal() {
		return nil, &ConflictError{Code: CodeNotTerminal, Reason: "only resolved or rejected issues can be reopened"}
	}

	issue.Status = models.Pending
	issue.ResolvedAt = nil
	issue.AssignedTo = nil
	if issue.HasCoordinates() {
		authority, err := e.AssignNearestAuthority(ctx, issue.Department, *issue.Latitude, *issue.Longitude)
		if err != nil {
			return nil, err
		}
		if authority != nil {
			issue.AssignedTo = &authority.ID
		}
	}
	e.refreshDerived(issue)

	return e.saveIssue(ctx, issue)
}

// RefreshOverdueFlags re-evaluates the overdue flag of every non-terminal
// issue against now and persists only the flags that changed. Issues are
// processed in parallel; each read-modify-write is independent. Running
// it twice with no elapsed time writes nothing the second time.
func (e *Engine) RefreshOverdueFlags(ctx context.Context, now time.Time) ([]models.Issue, error) {
	open, err := e.issues.OpenIssues(ctx)
	if err != nil {
		return nil, &DependencyError{Op: "scan open issues", Err: err, Retryable: true}
	}

	var (
		mu      sync.Mutex
		updated []models.Issue
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshWorkers)

	for i := range open {
		issue := open[i]
		flag := IsOverdue(issue.Deadline, now, issue.Status)
		if flag == issue.Overdue {
			continue
		}

		g.Go(func() error {
			issue.Overdue = flag
			issue.UpdatedAt = now
			if err := e.issues.SaveIssue(gctx, &issue); err != nil {
				return &DependencyError{Op: "save overdue flag", Err: err, Retryable: errors.Is(err, ErrVersionConflict)}
			}
			mu.Lock()
			updated = append(updated, issue)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return updated, err
	}
	return updated, nil
}

// transitionAllowed is the forward edge set of the status state machine.
func transitionAllowed(from, to models.IssueStatus) bool {
	switch from {
	case models.Pending:
		return to == models.InProgress || to == models.Resolved || to == models.Rejected
	case models.InProgress:
		return to == models.Resolved || to == models.Rejected
	default:
		return false
	}
}

// refreshDerived recomputes every derived field from the primary ones.
// Pure and in-memory; callers persist afterwards with a single save.
func (e *Engine) refreshDerived(issue *models.Issue) {
	now := e.now()
	issue.Upvotes = len(issue.UpvotedBy)
	issue.Deadline = ComputeDeadline(issue.Priority, issue.Upvotes, issue.CreatedAt)
	issue.Overdue = IsOverdue(issue.Deadline, now, issue.Status)
	issue.UpdatedAt = now
}

func (e *Engine) loadIssue(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	issue, err := e.issues.IssueByID(ctx, id)
	if err != nil {
		return nil, &DependencyError{Op: "load issue", Err: err, Retryable: !errors.Is(err, ErrIssueNotFound)}
	}
	return issue, nil
}

func (e *Engine) saveIssue(ctx context.Context, issue *models.Issue) (*models.Issue, error) {
	if err := e.issues.SaveIssue(ctx, issue); err != nil {
		return nil, &DependencyError{Op: "save issue", Err: err, Retryable: true}
	}
	return issue, nil
}
