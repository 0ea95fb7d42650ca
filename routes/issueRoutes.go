package routes

import (
	"civicgrid-be/config"
	"civicgrid-be/controllers"
	"civicgrid-be/middlewares"
	"civicgrid-be/models"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue routes
func IssueRoutes(r *gin.Engine) {
	issueLimit := config.GetEnvInt("ISSUE_CREATE_DAILY_LIMIT", 10)

	issue := r.Group("/api/issue", middlewares.AuthMiddleware())
	{
		issue.POST("/create", middlewares.IssueRateLimiter(issueLimit), controllers.CreateIssue)
		issue.GET("", controllers.GetAllIssues)
		issue.GET("/mine", controllers.GetIssuesByUser)
		issue.GET("/recent", controllers.RecentIssues)
		issue.GET("/analytics", controllers.GetIssueAnalytics)
		issue.GET("/:id", controllers.GetIssue)
		issue.POST("/:id/upvote", controllers.UpvoteIssue)
		issue.DELETE("/:id/upvote", controllers.UnupvoteIssue)
		issue.POST("/:id/reopen", controllers.ReopenIssue)
		issue.PATCH("/:id/status",
			middlewares.RequireRoles(models.RoleAdmin, models.RoleAuthority),
			controllers.TransitionIssue)
	}
}
