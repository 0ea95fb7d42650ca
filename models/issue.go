package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueCategory enum
type IssueCategory string

const (
	Pothole     IssueCategory = "pothole"
	Streetlight IssueCategory = "streetlight"
	Trash       IssueCategory = "trash"
	Water       IssueCategory = "water"
	Sewage      IssueCategory = "sewage"
	Other       IssueCategory = "other"
)

// ValidCategory reports whether c belongs to the closed category set.
func ValidCategory(c string) bool {
	switch IssueCategory(c) {
	case Pothole, Streetlight, Trash, Water, Sewage, Other:
		return true
	}
	return false
}

// IssueStatus enum
type IssueStatus string

const (
	Pending    IssueStatus = "pending"
	InProgress IssueStatus = "in-progress"
	Resolved   IssueStatus = "resolved"
	Rejected   IssueStatus = "rejected"
)

// Terminal reports whether s is an end state. Reopen is the only way out.
func (s IssueStatus) Terminal() bool {
	return s == Resolved || s == Rejected
}

// ValidStatus reports whether s is a known issue status.
func ValidStatus(s string) bool {
	switch IssueStatus(s) {
	case Pending, InProgress, Resolved, Rejected:
		return true
	}
	return false
}

// IssuePriority enum
type IssuePriority string

const (
	PriorityLow    IssuePriority = "low"
	PriorityMedium IssuePriority = "medium"
	PriorityHigh   IssuePriority = "high"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch IssuePriority(p) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Issue represents a civic issue reported by a user.
//
// Deadline and Overdue are derived from priority, upvotes, createdAt and
// status; they are recomputed in memory on every mutation and written in
// the same save, never patched independently. Version guards every save
// with a compare-and-swap so concurrent upvotes cannot clobber each other.
type Issue struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	Category    IssueCategory      `bson:"category" json:"category"`
	Priority    IssuePriority      `bson:"priority" json:"priority"`
	Status      IssueStatus        `bson:"status" json:"status"`
	Address     string             `bson:"address" json:"address"`
	Latitude    *float64           `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude   *float64           `bson:"longitude,omitempty" json:"longitude,omitempty"`
	ImageURL    *string            `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`

	ReportedBy primitive.ObjectID   `bson:"reportedBy" json:"reportedBy"`
	Upvotes    int                  `bson:"upvotes" json:"upvotes"`
	UpvotedBy  []primitive.ObjectID `bson:"upvotedBy,omitempty" json:"-"`

	Department Department          `bson:"department" json:"department"`
	AssignedTo *primitive.ObjectID `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`

	Deadline    time.Time  `bson:"deadline" json:"deadline"`
	Overdue     bool       `bson:"overdue" json:"overdue"`
	EstimatedAt *time.Time `bson:"estimatedAt,omitempty" json:"estimatedAt,omitempty"`
	ResolvedAt  *time.Time `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`

	Version   int64     `bson:"version" json:"-"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// HasUpvoted reports whether userID is in the distinct upvoter set.
func (i *Issue) HasUpvoted(userID primitive.ObjectID) bool {
	for _, id := range i.UpvotedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// HasCoordinates reports whether the issue carries a usable location pair.
func (i *Issue) HasCoordinates() bool {
	return i.Latitude != nil && i.Longitude != nil
}
