package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

// Claims is the bearer token payload. The subject is the actor id and the
// token id doubles as the session id for auto-sync.
type Claims struct {
	Role           string `json:"role"`
	TeamID         string `json:"team_id,omitempty"`
	DepartmentType string `json:"department_type"`
	jwt.RegisteredClaims
}

// Actor returns the session actor described by the claims.
func (c *Claims) Actor() (model.Actor, error) {
	if c.Subject == "" {
		return model.Actor{}, errors.New("token has no subject")
	}
	role := model.Role(c.Role)
	switch role {
	case model.RoleEmployee, model.RoleTeamLeader, model.RoleDirector:
	default:
		return model.Actor{}, fmt.Errorf("unknown role %q", c.Role)
	}
	return model.Actor{
		ID:             c.Subject,
		Role:           role,
		TeamID:         c.TeamID,
		DepartmentType: c.DepartmentType,
	}, nil
}

// IssueToken signs an HS256 token for actor valid for ttl.
func IssueToken(secret []byte, actor model.Actor, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:           string(actor.Role),
		TeamID:         actor.TeamID,
		DepartmentType: actor.DepartmentType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
