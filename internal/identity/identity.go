// Package identity verifies the signed identity assertions minted by the
// identity service. The chat core never checks credentials itself; it only
// validates that a presented token was signed with the shared key and
// extracts the {id, name, role} claims from it.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/orgchat/orgchat/internal/types"
)

const (
	subjectClaim = "sub"
	nameClaim    = "name"
	roleClaim    = "role"
)

type Verifier struct {
	signingKey []byte
}

func NewVerifier(signingKey []byte) *Verifier {
	return &Verifier{signingKey: signingKey}
}

// Verify parses and validates an identity assertion and returns the user it
// vouches for.
func (v *Verifier) Verify(tokenString string) (types.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return types.User{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.User{}, fmt.Errorf("invalid token claims")
	}

	id, _ := claims[subjectClaim].(string)
	name, _ := claims[nameClaim].(string)
	role, _ := claims[roleClaim].(string)
	if id == "" {
		return types.User{}, fmt.Errorf("missing subject claim")
	}
	if !types.Role(role).Valid() {
		return types.User{}, fmt.Errorf("invalid role claim %q", role)
	}

	return types.User{
		Id:   id,
		Name: name,
		Role: types.Role(role),
	}, nil
}

// Token mints an assertion for a user. The identity service is the normal
// issuer; this is here for tooling and tests that need a valid token.
func (v *Verifier) Token(user types.User, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		subjectClaim: user.Id,
		nameClaim:    user.Name,
		roleClaim:    string(user.Role),
		"exp":        time.Now().Add(ttl).Unix(),
	})

	return token.SignedString(v.signingKey)
}
