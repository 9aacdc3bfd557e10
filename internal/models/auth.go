package models

import "github.com/golang-jwt/jwt/v5"

// Role is the coarse access role carried in JWT claims. Issuing tokens is the
// identity provider's concern; this service only verifies them.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleRequester Role = "REQUESTER"
	RoleApprover  Role = "APPROVER"
)

// JWTClaims are the verified claims of an authenticated actor.
type JWTClaims struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}
