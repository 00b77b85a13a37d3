package ws

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("ws: unauthenticated")

// Authenticator resolves the user id of an upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (int64, error)
}

// JWTAuth accepts HS256 tokens whose "sub" claim is the numeric user id.
// The token is taken from the Authorization bearer header or the "token"
// query parameter, since browsers cannot set headers on WebSocket upgrades.
type JWTAuth struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTAuth creates a JWTAuth for secret.
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Authenticate implements Authenticator.
func (a *JWTAuth) Authenticate(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); raw == "" && strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimPrefix(h, "Bearer ")
	}
	if raw == "" {
		return 0, ErrUnauthenticated
	}

	tok, err := a.parser.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return parseUserID(sub)
}

// QueryAuth trusts the "user_id" query parameter. Development only.
type QueryAuth struct{}

// Authenticate implements Authenticator.
func (QueryAuth) Authenticate(r *http.Request) (int64, error) {
	return parseUserID(r.URL.Query().Get("user_id"))
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad user id %q", ErrUnauthenticated, s)
	}
	return id, nil
}

// IssueToken signs a token for userID. Used by tests and tooling.
func IssueToken(secret string, userID int64) (string, error) {
	claims := jwt.RegisteredClaims{Subject: strconv.FormatInt(userID, 10)}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
