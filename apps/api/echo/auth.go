package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
)

const (
	contextTokenKey = "userToken"
	studentParam    = "student"
)

// Claims represents the authorization claims transmitted via a JWT.
// Tokens are issued by the identity provider, which shares the app's secret key.
type Claims struct {
	jwt.StandardClaims
	Email        string `json:"email,omitempty"`
	IsAdmin      bool   `json:"is_admin,omitempty"`
	IsInstructor bool   `json:"is_instructor,omitempty"`
}

func newJWTConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// NewClaims returns the Claims identifying actor, valid for ttl.
func NewClaims(actor core.Actor, issuer string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   actor.ID,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email:        actor.Email,
		IsAdmin:      actor.IsAdmin,
		IsInstructor: actor.IsInstructor,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(secretKey string, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (c Claims) Actor() core.Actor {
	return core.Actor{
		ID:           c.Subject,
		Email:        c.Email,
		IsAdmin:      c.IsAdmin,
		IsInstructor: c.IsInstructor,
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextActor(ctx echo.Context) (core.Actor, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Actor{}, err
	}
	actor := claims.Actor()
	if actor.ID == "" {
		return core.Actor{}, errUnauthorized
	}
	return actor, nil
}

// getTargetStudent returns the student a request acts on: the caller,
// or the `student` query param when the caller may act for them.
func getTargetStudent(ctx echo.Context) (core.Actor, string, error) {
	actor, err := getContextActor(ctx)
	if err != nil {
		return core.Actor{}, "", err
	}
	studentID := core.CleanString(ctx.QueryParam(studentParam))
	if studentID == "" {
		return actor, actor.ID, nil
	}
	if !actor.CanActFor(studentID) {
		return core.Actor{}, "", errHttpForbidden
	}
	return actor, studentID, nil
}
