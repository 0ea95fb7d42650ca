package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"civicgrid-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCreateIssue(t *testing.T) {
	reporter := primitive.NewObjectID()
	authorityID := oid("65aaaaaaaaaaaaaaaaaaaaaa")

	t.Run("initializes derived fields and assigns", func(t *testing.T) {
		issues := newMemIssueStore()
		authorities := &memAuthorityStore{authorities: []models.User{
			testAuthority(authorityID, models.Sanitation, true, ptr(offsetLat(baseLat, 100)), ptr(baseLon)),
		}}
		e := newTestEngine(issues, authorities)

		issue := models.Issue{
			Title:      "overflowing bin",
			Category:   models.Trash,
			Priority:   models.PriorityMedium,
			ReportedBy: reporter,
			Latitude:   ptr(baseLat),
			Longitude:  ptr(baseLon),
			CreatedAt:  testNow,
		}
		if err := e.CreateIssue(context.Background(), &issue); err != nil {
			t.Fatalf("CreateIssue() error = %v", err)
		}

		if issue.Status != models.Pending {
			t.Errorf("Status = %s, want pending", issue.Status)
		}
		if issue.Department != models.Sanitation {
			t.Errorf("Department = %s, want Sanitation", issue.Department)
		}
		if issue.Upvotes != 0 || len(issue.UpvotedBy) != 0 {
			t.Error("new issue must start with an empty upvoter set")
		}
		if want := testNow.Add(72 * time.Hour); !issue.Deadline.Equal(want) {
			t.Errorf("Deadline = %v, want %v", issue.Deadline, want)
		}
		if issue.Overdue {
			t.Error("new issue must not be overdue")
		}
		if issue.AssignedTo == nil || *issue.AssignedTo != authorityID {
			t.Error("expected assignment to the nearest Sanitation authority")
		}
		if issues.get(issue.ID).ID != issue.ID {
			t.Error("issue was not persisted")
		}
	})

	t.Run("no authority leaves issue unassigned", func(t *testing.T) {
		e := newTestEngine(newMemIssueStore(), &memAuthorityStore{})

		issue := models.Issue{
			Title:      "leaking hydrant",
			Category:   models.Water,
			Priority:   models.PriorityHigh,
			ReportedBy: reporter,
			Latitude:   ptr(baseLat),
			Longitude:  ptr(baseLon),
			CreatedAt:  testNow,
		}
		if err := e.CreateIssue(context.Background(), &issue); err != nil {
			t.Fatalf("CreateIssue() error = %v", err)
		}
		if issue.AssignedTo != nil {
			t.Error("issue must stay unassigned when the department has no active authority")
		}
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		e := newTestEngine(newMemIssueStore(), nil)
		issue := models.Issue{Category: "graffiti", Priority: models.PriorityLow}

		var vErr *ValidationError
		if err := e.CreateIssue(context.Background(), &issue); !errors.As(err, &vErr) {
			t.Errorf("got %v, want ValidationError", err)
		}
	})

	t.Run("rejects out-of-range coordinates", func(t *testing.T) {
		e := newTestEngine(newMemIssueStore(), nil)
		issue := models.Issue{
			Category: models.Pothole,
			Priority: models.PriorityLow,
			Latitude: ptr(123.0), Longitude: ptr(baseLon),
		}

		var vErr *ValidationError
		if err := e.CreateIssue(context.Background(), &issue); !errors.As(err, &vErr) {
			t.Errorf("got %v, want ValidationError", err)
		}
	})
}

func TestApplyUpvote(t *testing.T) {
	voter := primitive.NewObjectID()
	created := testNow.Add(-6 * time.Hour)

	t.Run("tightens the deadline", func(t *testing.T) {
		issue := testIssue(models.Pothole, baseLat, baseLon, models.Pending, created)
		issues := newMemIssueStore(issue)
		e := newTestEngine(issues, nil)

		updated, err := e.ApplyUpvote(context.Background(), issue.ID, voter)
		if err != nil {
			t.Fatalf("ApplyUpvote() error = %v", err)
		}

		if updated.Upvotes != 1 || len(updated.UpvotedBy) != 1 {
			t.Errorf("Upvotes = %d, set size = %d, want 1/1", updated.Upvotes, len(updated.UpvotedBy))
		}
		want := ComputeDeadline(issue.Priority, 1, created)
		if !updated.Deadline.Equal(want) {
			t.Errorf("Deadline = %v, want %v", updated.Deadline, want)
		}
		if updated.Deadline.After(issue.Deadline) {
			t.Error("an upvote must never relax the deadline")
		}
		if got := issues.get(issue.ID); got.Upvotes != 1 {
			t.Error("upvote was not persisted")
		}
	})

	t.Run("duplicate upvote rejected without mutation", func(t *testing.T) {
		issue := testIssue(models.Pothole, baseLat, baseLon, models.Pending, created)
		issue.UpvotedBy = []primitive.ObjectID{voter}
		issue.Upvotes = 1
		issues := newMemIssueStore(issue)
		e := newTestEngine(issues, nil)

		_, err := e.ApplyUpvote(context.Background(), issue.ID, voter)
		var cErr *ConflictError
		if !errors.As(err, &cErr) || cErr.Code != CodeAlreadyUpvoted {
			t.Fatalf("got %v, want ConflictError(already_upvoted)", err)
		}
		if got := issues.get(issue.ID); got.Upvotes != 1 || got.Version != issue.Version {
			t.Error("rejected upvote must not mutate the issue")
		}
	})

	t.Run("unknown issue", func(t *testing.T) {
		e := newTestEngine(newMemIssueStore(), nil)
		_, err := e.ApplyUpvote(context.Background(), primitive.NewObjectID(), voter)
		var dErr *DependencyError
		if !errors.As(err, &dErr) || !errors.Is(err, ErrIssueNotFound) {
			t.Fatalf("got %v, want DependencyError wrapping ErrIssueNotFound", err)
		}
		if dErr.Retryable {
			t.Error("a missing issue is not a retryable failure")
		}
	})
}

func TestApplyUnupvote(t *testing.T) {
	voter := primitive.NewObjectID()
	created := testNow.Add(-6 * time.Hour)

	t.Run("removes the vote and relaxes the deadline", func(t *testing.T) {
		issue := testIssue(models.Pothole, baseLat, baseLon, models.Pending, created)
		issue.UpvotedBy = []primitive.ObjectID{voter}
		issue.Upvotes = 1
		issue.Deadline = ComputeDeadline(issue.Priority, 1, created)
		issues := newMemIssueStore(issue)
		e := newTestEngine(issues, nil)

		updated, err := e.ApplyUnupvote(context.Background(), issue.ID, voter)
		if err != nil {
			t.Fatalf("ApplyUnupvote() error = %v", err)
		}
		if updated.Upvotes != 0 || len(updated.UpvotedBy) != 0 {
			t.Errorf("Upvotes = %d, set size = %d, want 0/0", updated.Upvotes, len(updated.UpvotedBy))
		}
		if want := ComputeDeadline(issue.Priority, 0, created); !updated.Deadline.Equal(want) {
			t.Errorf("Deadline = %v, want %v", updated.Deadline, want)
		}
	})

	t.Run("un-upvote without a vote rejected", func(t *testing.T) {
		issue := testIssue(models.Pothole, baseLat, baseLon, models.Pending, created)
		e := newTestEngine(newMemIssueStore(issue), nil)

		_, err := e.ApplyUnupvote(context.Background(), issue.ID, voter)
		var cErr *ConflictError
		if !errors.As(err, &cErr) || cErr.Code != CodeNotUpvoted {
			t.Fatalf("got %v, want ConflictError(not_upvoted)", err)
		}
	})
}

// The upvote count must track the upvoter set through any interleaving of
// successful upvotes and un-upvotes.
func TestUpvoteSetInvariant(t *testing.T) {
	created := testNow.Add(-2 * time.Hour)
	issue := testIssue(models.Streetlight, baseLat, baseLon, models.Pending, created)
	issues := newMemIssueStore(issue)
	e := newTestEngine(issues, nil)

	actors := make([]primitive.ObjectID, 7)
	for i := range actors {
		actors[i] = primitive.NewObjectID()
	}

	for _, actor := range actors {
		if _, err := e.ApplyUpvote(context.Background(), issue.ID, actor); err != nil {
			t.Fatalf("ApplyUpvote() error = %v", err)
		}
	}
	for _, actor := range actors[:3] {
		if _, err := e.ApplyUnupvote(context.Background(), issue.ID, actor); err != nil {
			t.Fatalf("ApplyUnupvote() error = %v", err)
		}
	}

	got := issues.get(issue.ID)
	if got.Upvotes != 4 {
		t.Errorf("Upvotes = %d, want 4", got.Upvotes)
	}
	if got.Upvotes != len(got.UpvotedBy) {
		t.Errorf("count %d diverged from set size %d", got.Upvotes, len(got.UpvotedBy))
	}
}

// Concurrent upvoters race on the same issue; the CAS save rejects lost
// writes as retryable, and retrying callers must all land.
func TestConcurrentUpvotes(t *testing.T) {
	created := testNow.Add(-2 * time.Hour)
	issue := testIssue(models.Trash, baseLat, baseLon, models.Pending, created)
	issues := newMemIssueStore(issue)
	e := newTestEngine(issues, nil)

	const voters = 16
	var wg sync.WaitGroup
	errs := make(chan error, voters)

	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor := primitive.NewObjectID()
			for {
				_, err := e.ApplyUpvote(context.Background(), issue.ID, actor)
				if err == nil {
					return
				}
				var dErr *DependencyError
				if errors.As(err, &dErr) && dErr.Retryable {
					continue
				}
				errs <- err
				return
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent upvote failed: %v", err)
	}

	got := issues.get(issue.ID)
	if got.Upvotes != voters {
		t.Errorf("Upvotes = %d, want %d: a concurrent write was lost", got.Upvotes, voters)
	}
	if got.Upvotes != len(got.UpvotedBy) {
		t.Errorf("count %d diverged from set size %d", got.Upvotes, len(got.UpvotedBy))
	}
}

func TestTransition(t *testing.T) {
	admin := primitive.NewObjectID()
	authorityID := oid("65aaaaaaaaaaaaaaaaaaaaaa")
	outsider := primitive.NewObjectID()
	created := testNow.Add(-12 * time.Hour)

	newStore := func(status models.IssueStatus, assigned *primitive.ObjectID) (*memIssueStore, models.Issue) {
		issue := testIssue(models.Pothole, baseLat, baseLon, status, created)
		issue.AssignedTo = assigned
		return newMemIssueStore(issue), issue
	}

	t.Run("allowed transitions", func(t *testing.T) {
		tests := []struct {
			name string
			from models.IssueStatus
			to   models.IssueStatus
		}{
			{"pending to in-progress", models.Pending, models.InProgress},
			{"pending to resolved", models.Pending, models.Resolved},
			{"pending to rejected", models.Pending, models.Rejected},
			{"in-progress to resolved", models.InProgress, models.Resolved},
			{"in-progress to rejected", models.InProgress, models.Rejected},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				issues, issue := newStore(tt.from, nil)
				e := newTestEngine(issues, nil)

				updated, err := e.Transition(context.Background(), issue.ID, admin, models.RoleAdmin, tt.to, TransitionExtras{})
				if err != nil {
					t.Fatalf("Transition() error = %v", err)
				}
				if updated.Status != tt.to {
					t.Errorf("Status = %s, want %s", updated.Status, tt.to)
				}
			})
		}
	})

	t.Run("forbidden transitions", func(t *testing.T) {
		tests := []struct {
			name string
			from models.IssueStatus
			to   models.IssueStatus
		}{
			{"in-progress back to pending", models.InProgress, models.Pending},
			{"resolved to in-progress", models.Resolved, models.InProgress},
			{"rejected to resolved", models.Rejected, models.Resolved},
			{"pending to pending", models.Pending, models.Pending},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				issues, issue := newStore(tt.from, nil)
				e := newTestEngine(issues, nil)

				_, err := e.Transition(context.Background(), issue.ID, admin, models.RoleAdmin, tt.to, TransitionExtras{})
				var cErr *ConflictError
				if !errors.As(err, &cErr) || cErr.Code != CodeInvalidTransition {
					t.Fatalf("got %v, want ConflictError(invalid_transition)", err)
				}
				if got := issues.get(issue.ID); got.Status != tt.from {
					t.Error("rejected transition must not mutate the issue")
				}
			})
		}
	})

	t.Run("citizens cannot transition", func(t *testing.T) {
		issues, issue := newStore(models.Pending, nil)
		e := newTestEngine(issues, nil)

		_, err := e.Transition(context.Background(), issue.ID, outsider, models.RoleCitizen, models.InProgress, TransitionExtras{})
		var cErr *ConflictError
		if !errors.As(err, &cErr) || cErr.Code != CodeInvalidTransition {
			t.Fatalf("got %v, want ConflictError(invalid_transition)", err)
		}
	})

	t.Run("authority must be the assignee", func(t *testing.T) {
		issues, issue := newStore(models.Pending, &authorityID)
		e := newTestEngine(issues, nil)

		if _, err := e.Transition(context.Background(), issue.ID, outsider, models.RoleAuthority, models.InProgress, TransitionExtras{}); err == nil {
			t.Fatal("unassigned authority must not transition the issue")
		}
		if _, err := e.Transition(context.Background(), issue.ID, authorityID, models.RoleAuthority, models.InProgress, TransitionExtras{}); err != nil {
			t.Fatalf("assigned authority transition failed: %v", err)
		}
	})

	t.Run("resolving stamps resolvedAt and clears overdue", func(t *testing.T) {
		issues, issue := newStore(models.InProgress, nil)
		overdueIssue := issues.get(issue.ID)
		overdueIssue.Deadline = testNow.Add(-time.Hour)
		overdueIssue.Overdue = true
		overdueIssue.Version++
		issues.issues[issue.ID] = overdueIssue

		e := newTestEngine(issues, nil)
		updated, err := e.Transition(context.Background(), issue.ID, admin, models.RoleAdmin, models.Resolved, TransitionExtras{})
		if err != nil {
			t.Fatalf("Transition() error = %v", err)
		}
		if updated.ResolvedAt == nil || !updated.ResolvedAt.Equal(testNow) {
			t.Errorf("ResolvedAt = %v, want %v", updated.ResolvedAt, testNow)
		}
		if updated.Overdue {
			t.Error("resolved issues are never overdue")
		}
	})

	t.Run("estimate is informational only", func(t *testing.T) {
		issues, issue := newStore(models.Pending, nil)
		e := newTestEngine(issues, nil)

		estimate := testNow.Add(48 * time.Hour)
		updated, err := e.Transition(context.Background(), issue.ID, admin, models.RoleAdmin, models.InProgress, TransitionExtras{EstimatedAt: &estimate})
		if err != nil {
			t.Fatalf("Transition() error = %v", err)
		}
		if updated.EstimatedAt == nil || !updated.EstimatedAt.Equal(estimate) {
			t.Error("estimated resolution timestamp was not stored")
		}
		if !updated.Deadline.Equal(issue.Deadline) {
			t.Error("the estimate must not affect the computed deadline")
		}
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		issues, issue := newStore(models.Pending, nil)
		e := newTestEngine(issues, nil)

		var vErr *ValidationError
		if _, err := e.Transition(context.Background(), issue.ID, admin, models.RoleAdmin, "archived", TransitionExtras{}); !errors.As(err, &vErr) {
			t.Fatalf("got %v, want ValidationError", err)
		}
	})
}

func TestReopen(t *testing.T) {
	reporter := primitive.NewObjectID()
	outsider := primitive.NewObjectID()
	oldAuthority := oid("65aaaaaaaaaaaaaaaaaaaaaa")
	newAuthority := oid("65bbbbbbbbbbbbbbbbbbbbbb")
	created := testNow.Add(-72 * time.Hour)

	newResolved := func() models.Issue {
		issue := testIssue(models.Trash, baseLat, baseLon, models.Resolved, created)
		issue.ReportedBy = reporter
		issue.AssignedTo = &oldAuthority
		resolved := testNow.Add(-time.Hour)
		issue.ResolvedAt = &resolved
		return issue
	}

	t.Run("reporter reopens and assignment is re-run", func(t *testing.T) {
		issue := newResolved()
		issues := newMemIssueStore(issue)
		authorities := &memAuthorityStore{authorities: []models.User{
			// The original authority has gone inactive since.
			testAuthority(oldAuthority, models.Sanitation, false, ptr(baseLat), ptr(baseLon)),
			testAuthority(newAuthority, models.Sanitation, true, ptr(offsetLat(baseLat, 500)), ptr(baseLon)),
		}}
		e := newTestEngine(issues, authorities)

		updated, err := e.Reopen(context.Background(), issue.ID, reporter)
		if err != nil {
			t.Fatalf("Reopen() error = %v", err)
		}
		if updated.Status != models.Pending {
			t.Errorf("Status = %s, want pending", updated.Status)
		}
		if updated.ResolvedAt != nil {
			t.Error("ResolvedAt must be cleared on reopen")
		}
		if updated.AssignedTo == nil || *updated.AssignedTo != newAuthority {
			t.Error("reopen must re-run assignment")
		}
	})

	t.Run("reopen with no remaining authority leaves unassigned", func(t *testing.T) {
		issue := newResolved()
		issues := newMemIssueStore(issue)
		e := newTestEngine(issues, &memAuthorityStore{})

		updated, err := e.Reopen(context.Background(), issue.ID, reporter)
		if err != nil {
			t.Fatalf("Reopen() error = %v", err)
		}
		if updated.AssignedTo != nil {
			t.Error("stale assignee must be cleared when no authority is available")
		}
	})

	t.Run("only the reporter may reopen", func(t *testing.T) {
		issue := newResolved()
		issues := newMemIssueStore(issue)
		e := newTestEngine(issues, nil)

		_, err := e.Reopen(context.Background(), issue.ID, outsider)
		var cErr *ConflictError
		if !errors.As(err, &cErr) || cErr.Code != CodeNotReporter {
			t.Fatalf("got %v, want ConflictError(not_reporter)", err)
		}
		if got := issues.get(issue.ID); got.Status != models.Resolved {
			t.Error("rejected reopen must not mutate the issue")
		}
	})

	t.Run("only terminal issues may be reopened", func(t *testing.T) {
		for _, status := range []models.IssueStatus{models.Pending, models.InProgress} {
			issue := testIssue(models.Trash, baseLat, baseLon, status, created)
			issue.ReportedBy = reporter
			issues := newMemIssueStore(issue)
			e := newTestEngine(issues, nil)

			_, err := e.Reopen(context.Background(), issue.ID, reporter)
			var cErr *ConflictError
			if !errors.As(err, &cErr) || cErr.Code != CodeNotTerminal {
				t.Fatalf("%s: got %v, want ConflictError(not_terminal)", status, err)
			}
		}
	})
}

func TestRefreshOverdueFlags(t *testing.T) {
	created := testNow.Add(-10 * 24 * time.Hour)

	overdueIssue := testIssue(models.Pothole, baseLat, baseLon, models.Pending, created)
	overdueIssue.Deadline = testNow.Add(-time.Hour)

	onTimeIssue := testIssue(models.Trash, baseLat, baseLon, models.Pending, testNow.Add(-time.Hour))

	resolvedIssue := testIssue(models.Water, baseLat, baseLon, models.Resolved, created)
	resolvedIssue.Deadline = testNow.Add(-time.Hour)

	issues := newMemIssueStore(overdueIssue, onTimeIssue, resolvedIssue)
	e := newTestEngine(issues, nil)

	updated, err := e.RefreshOverdueFlags(context.Background(), testNow)
	if err != nil {
		t.Fatalf("RefreshOverdueFlags() error = %v", err)
	}
	if len(updated) != 1 || updated[0].ID != overdueIssue.ID {
		t.Fatalf("updated %d issues, want exactly the overdue one", len(updated))
	}
	if !issues.get(overdueIssue.ID).Overdue {
		t.Error("overdue flag was not persisted")
	}
	if issues.get(resolvedIssue.ID).Overdue {
		t.Error("terminal issues must never be flagged overdue")
	}

	// Second pass with no elapsed time must be a no-op.
	savesBefore := issues.saveCount()
	updated, err = e.RefreshOverdueFlags(context.Background(), testNow)
	if err != nil {
		t.Fatalf("RefreshOverdueFlags() second run error = %v", err)
	}
	if len(updated) != 0 {
		t.Errorf("second run updated %d issues, want 0", len(updated))
	}
	if issues.saveCount() != savesBefore {
		t.Error("second run must not write anything")
	}
}
