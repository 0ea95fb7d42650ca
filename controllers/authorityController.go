package controllers

import (
	"context"
	"net/http"
	"time"

	"civicgrid-be/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreateAuthority provisions a field-authority account (admin only).
func CreateAuthority(c *gin.Context) {
	var input struct {
		Name       string   `json:"name" binding:"required,max=50"`
		Email      string   `json:"email" binding:"required,email"`
		Password   string   `json:"password" binding:"required,min=6"`
		Department string   `json:"department" binding:"required"`
		Latitude   *float64 `json:"latitude,omitempty"`
		Longitude  *float64 `json:"longitude,omitempty"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch models.Department(input.Department) {
	case models.PublicWorks, models.Electrical, models.Sanitation, models.WaterWorks, models.GeneralServices:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid department"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := userCollection.CountDocuments(ctx, bson.M{"email": input.Email})
	if err != nil {
		logger.Errorw("checking existing user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User with this email already exists"})
		return
	}

	authority := models.User{
		Name:       input.Name,
		Email:      input.Email,
		Password:   input.Password,
		Role:       models.RoleAuthority,
		Department: models.Department(input.Department),
		Active:     true,
		Latitude:   input.Latitude,
		Longitude:  input.Longitude,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := authority.HashPassword(); err != nil {
		logger.Errorw("hashing password", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	result, err := userCollection.InsertOne(ctx, authority)
	if err != nil {
		logger.Errorw("inserting authority", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         result.InsertedID,
		"name":       authority.Name,
		"email":      authority.Email,
		"department": authority.Department,
		"active":     authority.Active,
	})
}

// ListAuthorities returns authority accounts, optionally filtered by
// department and active flag (admin only).
func ListAuthorities(c *gin.Context) {
	filter := bson.M{"role": models.RoleAuthority}

	if department := c.Query("department"); department != "" && department != "all" {
		filter["department"] = department
	}
	if active := c.Query("active"); active == "true" || active == "false" {
		filter["active"] = active == "true"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cursor, err := userCollection.Find(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve authorities"})
		return
	}
	defer cursor.Close(ctx)

	var authorities []models.User
	if err := cursor.All(ctx, &authorities); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode authorities"})
		return
	}

	c.JSON(http.StatusOK, authorities)
}

// SetAuthorityActive flips the active flag on an authority account
// (admin only). Deactivated authorities drop out of the assignment pool;
// already-assigned issues keep their assignee until reopened.
func SetAuthorityActive(c *gin.Context) {
	authorityID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid authority ID"})
		return
	}

	var input struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := userCollection.UpdateOne(ctx,
		bson.M{"_id": authorityID, "role": models.RoleAuthority},
		bson.M{"$set": bson.M{"active": *input.Active, "updatedAt": time.Now()}})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update authority"})
		return
	}
	if result.MatchedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Authority not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Authority updated successfully", "active": *input.Active})
}

// UpdateAuthorityLocation stores the authenticated authority's last-known
// coordinates, which rank it in nearest-authority assignment.
func UpdateAuthorityLocation(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	authorityID, err := primitive.ObjectIDFromHex(userID.(string))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var input struct {
		Latitude  *float64 `json:"latitude" binding:"required"`
		Longitude *float64 `json:"longitude" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if *input.Latitude < -90 || *input.Latitude > 90 || *input.Longitude < -180 || *input.Longitude > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Coordinates out of range"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := userCollection.UpdateOne(ctx,
		bson.M{"_id": authorityID, "role": models.RoleAuthority},
		bson.M{"$set": bson.M{
			"latitude":  *input.Latitude,
			"longitude": *input.Longitude,
			"updatedAt": time.Now(),
		}})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update location"})
		return
	}
	if result.MatchedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Authority not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Location updated successfully"})
}
