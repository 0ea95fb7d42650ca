package routes

import (
	"civicgrid-be/controllers"
	"civicgrid-be/middlewares"
	"civicgrid-be/models"

	"github.com/gin-gonic/gin"
)

// AuthorityRoutes sets up authority account management routes
func AuthorityRoutes(r *gin.Engine) {
	authority := r.Group("/api/authority", middlewares.AuthMiddleware())
	{
		authority.POST("", middlewares.RequireRoles(models.RoleAdmin), controllers.CreateAuthority)
		authority.GET("", middlewares.RequireRoles(models.RoleAdmin), controllers.ListAuthorities)
		authority.PATCH("/:id/active", middlewares.RequireRoles(models.RoleAdmin), controllers.SetAuthorityActive)
		authority.PUT("/location", middlewares.RequireRoles(models.RoleAuthority), controllers.UpdateAuthorityLocation)
	}
}
