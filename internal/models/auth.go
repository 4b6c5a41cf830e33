package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTutor   UserRole = "TUTOR"
	RoleStudent UserRole = "STUDENT"
	RoleParent  UserRole = "PARENT"
)

// JWTClaims represents the JWT payload for access tokens. ProfileID is the tutor or learner
// profile the identity provider resolved for the user.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	ProfileID string   `json:"profile_id"`
	Role      UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor is the caller on whose behalf a scheduling operation runs.
type Actor struct {
	ProfileID string
	Role      UserRole
}

// Actor extracts the acting identity.
func (c *JWTClaims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{ProfileID: c.ProfileID, Role: c.Role}
}
