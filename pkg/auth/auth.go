package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v4"
)

const (
	XUserNameHeader = "X-User-Name"
	XUserRoleHeader = "X-User-Role"

	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Config struct {
	JWTSecret string `yaml:"jwtSecret" envconfig:"JWT_SECRET"`
}

// JWTKey signs and verifies access tokens. Overridden from config on startup.
var JWTKey = []byte("dev-secret")

func SetKey(secret string) {
	if secret != "" {
		JWTKey = []byte(secret)
	}
}

type Profile struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type Claims struct {
	jwt.RegisteredClaims
	Profile Profile `json:"profile"`
}

type ctxKey int

const authKey ctxKey = 1

type Auth struct {
	Username string
	Role     string
}

func (a Auth) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func SetAuthContext(ctx context.Context, username, role string) context.Context {
	return context.WithValue(ctx, authKey, Auth{Username: username, Role: role})
}

func FromContext(ctx context.Context) (Auth, bool) {
	a, ok := ctx.Value(authKey).(Auth)
	return a, ok
}

func IsAdmin(ctx context.Context) bool {
	a, ok := FromContext(ctx)
	return ok && a.IsAdmin()
}
