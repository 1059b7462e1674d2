// README: Firebase ID-token verification; turns a verified token into the caller's uid and role.
package infra

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"schoolride/internal/types"
)

// roleClaim is the custom claim that carries the caller's role.
const roleClaim = "role"

// AuthToken is a verified caller. Role defaults to parent when the token
// carries no recognised role claim.
type AuthToken struct {
	UID   string
	Role  types.Role
	Email string
}

// TokenVerifier verifies a raw ID token and resolves the caller behind it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*AuthToken, error)
}

type firebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier builds a verifier for projectID. credentialsFile is an
// optional service-account JSON path; application-default credentials are
// used when it is empty.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (TokenVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app for %s: %w", projectID, err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*AuthToken, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	email, _ := token.Claims["email"].(string)
	return &AuthToken{
		UID:   token.UID,
		Role:  RoleFromClaims(token.Claims),
		Email: email,
	}, nil
}

// RoleFromClaims reads the role custom claim set on the caller's account.
func RoleFromClaims(claims map[string]any) types.Role {
	v, _ := claims[roleClaim].(string)
	return ParseRole(v)
}

// ParseRole maps a role name, case-insensitively, to a Role. Unknown and
// empty names are parents.
func ParseRole(v string) types.Role {
	switch r := types.Role(strings.ToLower(strings.TrimSpace(v))); r {
	case types.RoleDriver, types.RoleAdmin:
		return r
	default:
		return types.RoleParent
	}
}
