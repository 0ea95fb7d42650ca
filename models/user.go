package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// UserRole enum
type UserRole string

const (
	RoleCitizen   UserRole = "citizen"
	RoleAdmin     UserRole = "admin"
	RoleAuthority UserRole = "authority"
)

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	switch UserRole(r) {
	case RoleCitizen, RoleAdmin, RoleAuthority:
		return true
	}
	return false
}

// User is any account: citizens file issues, admins manage them, and
// authority accounts are field staff. Department, Active and the
// last-known coordinates only carry meaning for authority accounts and
// feed the nearest-authority assignment.
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name     string             `bson:"name" json:"name"`
	Email    string             `bson:"email" json:"email"`
	Password string             `bson:"password,omitempty" json:"-"`
	Role     UserRole           `bson:"role" json:"role"`

	Department Department `bson:"department,omitempty" json:"department,omitempty"`
	Active     bool       `bson:"active" json:"active"`
	Latitude   *float64   `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude  *float64   `bson:"longitude,omitempty" json:"longitude,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// HasCoordinates reports whether the account has a last-known location.
func (u *User) HasCoordinates() bool {
	return u.Latitude != nil && u.Longitude != nil
}

func (u *User) HashPassword() error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

func (u *User) ComparePassword(candidate string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate))
	return err == nil
}
