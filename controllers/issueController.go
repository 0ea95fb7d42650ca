package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"civicgrid-be/config"
	"civicgrid-be/engine"
	"civicgrid-be/models"

	"github.com/gin-gonic/gin"
	"github.com/montanaflynn/stats"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var issueCollection *mongo.Collection = config.GetCollection("issues")
var userCollection *mongo.Collection = config.GetCollection("users")

// CreateIssue handles the creation of a new issue. Unless force=true, a
// nearby open issue of the same category is returned as an advisory
// duplicate instead of creating a new record, so the reporter can upvote
// the existing report.
func CreateIssue(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	reportedBy, err := primitive.ObjectIDFromHex(userID.(string))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var input struct {
		Title       string   `json:"title" binding:"required,max=200"`
		Description string   `json:"description" binding:"required,max=1000"`
		Category    string   `json:"category" binding:"required"`
		Priority    string   `json:"priority,omitempty"`
		Address     string   `json:"address" binding:"required,max=200"`
		ImageURL    *string  `json:"imageUrl,omitempty"`
		Latitude    *float64 `json:"latitude,omitempty"`
		Longitude   *float64 `json:"longitude,omitempty"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !models.ValidCategory(input.Category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
		return
	}

	priority := models.PriorityMedium
	if input.Priority != "" {
		if !models.ValidPriority(input.Priority) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid priority"})
			return
		}
		priority = models.IssuePriority(input.Priority)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Advisory duplicate check: never blocks creation, the reporter
	// decides whether to pile onto the existing issue or force a new one.
	force := c.Query("force") == "true"
	if !force && input.Latitude != nil && input.Longitude != nil {
		threshold, _ := strconv.ParseFloat(c.DefaultQuery("thresholdMeters", "0"), 64)
		match, err := lifecycle.FindDuplicate(ctx, models.IssueCategory(input.Category),
			*input.Latitude, *input.Longitude, threshold)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		if match != nil {
			c.JSON(http.StatusConflict, gin.H{
				"code":      "duplicate_nearby",
				"message":   "A similar issue is already open nearby. Upvote it, or retry with force=true.",
				"duplicate": match,
			})
			return
		}
	}

	issue := models.Issue{
		Title:       input.Title,
		Description: input.Description,
		Category:    models.IssueCategory(input.Category),
		Priority:    priority,
		Address:     input.Address,
		ImageURL:    input.ImageURL,
		ReportedBy:  reportedBy,
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		CreatedAt:   time.Now(),
	}

	if err := lifecycle.CreateIssue(ctx, &issue); err != nil {
		respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, issue)
}

// GetAllIssues handles retrieving all issues with filtering, pagination,
// and reporter info
func GetAllIssues(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Parse query parameters
	category := c.Query("category")
	status := c.Query("status")
	priority := c.Query("priority")
	department := c.Query("department")
	overdue := c.Query("overdue")
	search := c.Query("search")
	sort := c.DefaultQuery("sort", "newest")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	// Build query filter
	filter := bson.M{}

	if category != "" && category != "all" {
		filter["category"] = category
	}

	if status != "" && status != "all" {
		filter["status"] = status
	}

	if priority != "" && priority != "all" {
		filter["priority"] = priority
	}

	if department != "" && department != "all" {
		filter["department"] = department
	}

	if overdue == "true" || overdue == "false" {
		filter["overdue"] = overdue == "true"
	}

	if search != "" {
		filter["$or"] = []bson.M{
			{"title": bson.M{"$regex": search, "$options": "i"}},
			{"description": bson.M{"$regex": search, "$options": "i"}},
		}
	}

	// Calculate pagination
	skip := (page - 1) * limit

	// Sort options
	var sortOptions bson.D
	switch sort {
	case "oldest":
		sortOptions = bson.D{{Key: "createdAt", Value: 1}}
	case "deadline":
		sortOptions = bson.D{{Key: "deadline", Value: 1}}
	case "upvotes":
		sortOptions = bson.D{{Key: "upvotes", Value: -1}}
	case "newest":
		fallthrough
	default:
		sortOptions = bson.D{{Key: "createdAt", Value: -1}}
	}

	// Get total count for pagination
	totalCount, err := issueCollection.CountDocuments(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count issues"})
		return
	}

	findOptions := options.Find().
		SetSort(sortOptions).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := issueCollection.Find(ctx, filter, findOptions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve issues"})
		return
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode issues"})
		return
	}

	// Get current user ID for vote checking (if authenticated)
	var currentUserID *primitive.ObjectID
	if userIDStr, exists := c.Get("user_id"); exists {
		if objID, err := primitive.ObjectIDFromHex(userIDStr.(string)); err == nil {
			currentUserID = &objID
		}
	}

	enriched := make([]gin.H, 0, len(issues))
	for i := range issues {
		enriched = append(enriched, issueResponse(ctx, &issues[i], currentUserID))
	}

	// Calculate pagination info
	totalPages := int((totalCount + int64(limit) - 1) / int64(limit))

	c.JSON(http.StatusOK, gin.H{
		"issues":      enriched,
		"totalIssues": totalCount,
		"totalPages":  totalPages,
		"currentPage": page,
	})
}

// GetIssue retrieves an issue by its ID
func GetIssue(c *gin.Context) {
	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid issue ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var issue models.Issue
	err = issueCollection.FindOne(ctx, bson.M{"_id": issueID}).Decode(&issue)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve issue"})
		}
		return
	}

	var currentUserID *primitive.ObjectID
	if userIDStr, exists := c.Get("user_id"); exists {
		if objID, err := primitive.ObjectIDFromHex(userIDStr.(string)); err == nil {
			currentUserID = &objID
		}
	}

	c.JSON(http.StatusOK, issueResponse(ctx, &issue, currentUserID))
}

// GetIssuesByUser retrieves all issues created by the authenticated user
func GetIssuesByUser(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	userObjID, err := primitive.ObjectIDFromHex(userID.(string))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cursor, err := issueCollection.Find(ctx, bson.M{"reportedBy": userObjID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve issues"})
		return
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode issues"})
		return
	}

	enriched := make([]gin.H, 0, len(issues))
	for i := range issues {
		enriched = append(enriched, issueResponse(ctx, &issues[i], &userObjID))
	}

	c.JSON(http.StatusOK, enriched)
}

// UpvoteIssue adds the authenticated user to the issue's upvoter set,
// which tightens its resolution deadline.
func UpvoteIssue(c *gin.Context) {
	issueID, actorID, ok := issueAndActor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := lifecycle.ApplyUpvote(ctx, issueID, actorID)
	if err != nil {
		respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Vote cast successfully",
		"votes":        issue.Upvotes,
		"deadline":     issue.Deadline,
		"userHasVoted": true,
	})
}

// UnupvoteIssue removes the authenticated user's upvote.
func UnupvoteIssue(c *gin.Context) {
	issueID, actorID, ok := issueAndActor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := lifecycle.ApplyUnupvote(ctx, issueID, actorID)
	if err != nil {
		respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Vote removed successfully",
		"votes":        issue.Upvotes,
		"deadline":     issue.Deadline,
		"userHasVoted": false,
	})
}

// TransitionIssue moves an issue through its status state machine.
// Admins may drive any issue; authority accounts only the ones assigned
// to them.
func TransitionIssue(c *gin.Context) {
	issueID, actorID, ok := issueAndActor(c)
	if !ok {
		return
	}

	roleVal, _ := c.Get("user_role")
	role, _ := roleVal.(string)

	var input struct {
		Status      string     `json:"status" binding:"required"`
		EstimatedAt *time.Time `json:"estimatedAt,omitempty"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := lifecycle.Transition(ctx, issueID, actorID, models.UserRole(role),
		models.IssueStatus(input.Status), engine.TransitionExtras{EstimatedAt: input.EstimatedAt})
	if err != nil {
		respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// ReopenIssue returns a resolved or rejected issue to pending. Only the
// original reporter may do this; assignment is re-run.
func ReopenIssue(c *gin.Context) {
	issueID, actorID, ok := issueAndActor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := lifecycle.Reopen(ctx, issueID, actorID)
	if err != nil {
		respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// RecentIssues returns the most recent issues that have coordinates, for
// map pins
func RecentIssues(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	limit := 19

	filter := bson.M{
		"latitude":  bson.M{"$exists": true, "$ne": nil},
		"longitude": bson.M{"$exists": true, "$ne": nil},
	}

	projection := bson.M{
		"_id":       1,
		"title":     1,
		"latitude":  1,
		"longitude": 1,
		"address":   1,
		"category":  1,
		"status":    1,
		"overdue":   1,
		"createdAt": 1,
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(projection)

	cursor, err := issueCollection.Find(ctx, filter, findOptions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve recent issues"})
		return
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode recent issues"})
		return
	}

	type pin struct {
		ID        string             `json:"id"`
		Title     string             `json:"title"`
		Latitude  float64            `json:"latitude"`
		Longitude float64            `json:"longitude"`
		Address   string             `json:"address"`
		Category  string             `json:"category"`
		Status    models.IssueStatus `json:"status"`
		Overdue   bool               `json:"overdue"`
		CreatedAt time.Time          `json:"createdAt"`
	}

	var response []pin
	for _, issue := range issues {
		if issue.HasCoordinates() {
			response = append(response, pin{
				ID:        issue.ID.Hex(),
				Title:     issue.Title,
				Latitude:  *issue.Latitude,
				Longitude: *issue.Longitude,
				Address:   issue.Address,
				Category:  string(issue.Category),
				Status:    issue.Status,
				Overdue:   issue.Overdue,
				CreatedAt: issue.CreatedAt,
			})
		}
	}

	c.JSON(http.StatusOK, response)
}

// GetIssueAnalytics returns analytical data about issues
func GetIssueAnalytics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Get issues by category using aggregation
	categoryPipeline := []bson.M{
		{
			"$group": bson.M{
				"_id":   "$category",
				"count": bson.M{"$sum": 1},
			},
		},
		{
			"$project": bson.M{
				"name":  "$_id",
				"value": "$count",
				"_id":   0,
			},
		},
	}

	categoryCursor, err := issueCollection.Aggregate(ctx, categoryPipeline)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get category analytics"})
		return
	}
	defer categoryCursor.Close(ctx)

	var issuesByCategory []bson.M
	if err := categoryCursor.All(ctx, &issuesByCategory); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode category analytics"})
		return
	}

	// Get last 7 days data
	var last7Days []gin.H
	for i := 6; i >= 0; i-- {
		date := time.Now().AddDate(0, 0, -i)
		date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

		nextDate := date.AddDate(0, 0, 1)

		count, err := issueCollection.CountDocuments(ctx, bson.M{
			"createdAt": bson.M{
				"$gte": date,
				"$lt":  nextDate,
			},
		})
		if err != nil {
			count = 0
		}

		last7Days = append(last7Days, gin.H{
			"date":  date.Format("2006-01-02"),
			"count": count,
		})
	}

	// Top voted issues: upvotes is a stored field kept in sync with the
	// upvoter set, so the store can sort on it directly
	findOptions := options.Find().
		SetSort(bson.D{{Key: "upvotes", Value: -1}, {Key: "createdAt", Value: -1}}).
		SetLimit(5).
		SetProjection(bson.M{"_id": 1, "title": 1, "category": 1, "upvotes": 1})

	cursor, err := issueCollection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top voted issues"})
		return
	}
	defer cursor.Close(ctx)

	var topVotedIssues []bson.M
	if err := cursor.All(ctx, &topVotedIssues); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode top voted issues"})
		return
	}

	// Resolution time stats over recently resolved issues
	resolvedOptions := options.Find().
		SetSort(bson.D{{Key: "resolvedAt", Value: -1}}).
		SetLimit(500).
		SetProjection(bson.M{"createdAt": 1, "resolvedAt": 1})

	resolvedCursor, err := issueCollection.Find(ctx,
		bson.M{"status": models.Resolved, "resolvedAt": bson.M{"$ne": nil}}, resolvedOptions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve resolved issues"})
		return
	}
	defer resolvedCursor.Close(ctx)

	var resolved []models.Issue
	if err := resolvedCursor.All(ctx, &resolved); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode resolved issues"})
		return
	}

	var hoursToResolve []float64
	for _, issue := range resolved {
		if issue.ResolvedAt != nil {
			hoursToResolve = append(hoursToResolve, issue.ResolvedAt.Sub(issue.CreatedAt).Hours())
		}
	}

	meanHours, _ := stats.Mean(hoursToResolve)
	medianHours, _ := stats.Median(hoursToResolve)

	// Get total counts
	totalIssues, err := issueCollection.CountDocuments(ctx, bson.M{})
	if err != nil {
		totalIssues = 0
	}

	openIssues, err := issueCollection.CountDocuments(ctx, bson.M{
		"status": bson.M{"$in": []models.IssueStatus{models.Pending, models.InProgress}},
	})
	if err != nil {
		openIssues = 0
	}

	overdueIssues, err := issueCollection.CountDocuments(ctx, bson.M{"overdue": true})
	if err != nil {
		overdueIssues = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"issuesByCategory":   issuesByCategory,
		"last7Days":          last7Days,
		"topVotedIssues":     topVotedIssues,
		"totalIssues":        totalIssues,
		"openIssues":         openIssues,
		"overdueIssues":      overdueIssues,
		"meanHoursToResolve": meanHours,
		"medianHoursToResolve": medianHours,
	})
}

// issueAndActor extracts the issue id from the path and the actor id from
// the auth context.
func issueAndActor(c *gin.Context) (issueID, actorID primitive.ObjectID, ok bool) {
	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid issue ID"})
		return issueID, actorID, false
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return issueID, actorID, false
	}

	actorID, err = primitive.ObjectIDFromHex(userID.(string))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return issueID, actorID, false
	}

	return issueID, actorID, true
}

// issueResponse flattens an issue with reporter info and the current
// user's vote status.
func issueResponse(ctx context.Context, issue *models.Issue, currentUserID *primitive.ObjectID) gin.H {
	userHasVoted := false
	if currentUserID != nil {
		userHasVoted = issue.HasUpvoted(*currentUserID)
	}

	var reporter models.User
	reportedByMap := gin.H{"id": issue.ReportedBy}
	if err := userCollection.FindOne(ctx, bson.M{"_id": issue.ReportedBy}).Decode(&reporter); err == nil {
		reportedByMap["name"] = reporter.Name
		reportedByMap["email"] = reporter.Email
	}

	return gin.H{
		"id":           issue.ID,
		"title":        issue.Title,
		"description":  issue.Description,
		"category":     issue.Category,
		"priority":     issue.Priority,
		"status":       issue.Status,
		"address":      issue.Address,
		"imageUrl":     issue.ImageURL,
		"latitude":     issue.Latitude,
		"longitude":    issue.Longitude,
		"department":   issue.Department,
		"assignedTo":   issue.AssignedTo,
		"deadline":     issue.Deadline,
		"overdue":      issue.Overdue,
		"estimatedAt":  issue.EstimatedAt,
		"resolvedAt":   issue.ResolvedAt,
		"reportedBy":   reportedByMap,
		"votes":        issue.Upvotes,
		"userHasVoted": userHasVoted,
		"createdAt":    issue.CreatedAt,
		"updatedAt":    issue.UpdatedAt,
	}
}
