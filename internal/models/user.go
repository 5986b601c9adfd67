package models

import (
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

// Staff roles. The stream endpoint only accepts connections whose verified
// JWT claim carries one of these.
const (
	RoleAdmin   = "admin"
	RoleTrainer = "trainer"
	RoleSales   = "sales"
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleTrainer, RoleSales:
		return true
	}
	return false
}

type User struct {
	gorm.Model `json:"-"`
	ID         uint   `json:"id" gorm:"primaryKey"`
	Name       string `json:"name"`
	Email      string `json:"email" gorm:"uniqueIndex"`
	Role       string `json:"role" gorm:"size:20;index"`
	Password   string `json:"-"` // bcrypt hash, never serialized
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignUpRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=admin trainer sales"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
