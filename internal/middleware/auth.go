package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"tms/internal/domain"
)

const (
	headerAuthorization = "Authorization"
	bearerPrefix        = "Bearer "
	operatorContextKey  = "tms.operator"
)

// Claims is the bearer token payload. Subject carries the operator id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth verifies HS256 bearer tokens and stores the caller as a
// domain.Operator on the gin context.
func Auth(secret, issuer string) gin.HandlerFunc {
	key := []byte(secret)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		raw := c.GetHeader(headerAuthorization)
		if !strings.HasPrefix(raw, bearerPrefix) {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		claims := &Claims{}
		_, err := parser.ParseWithClaims(strings.TrimPrefix(raw, bearerPrefix), claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortUnauthorized(c, "token expired")
				return
			}
			abortUnauthorized(c, "invalid token")
			return
		}
		if claims.Subject == "" {
			abortUnauthorized(c, "token has no subject")
			return
		}

		c.Set(operatorContextKey, domain.Operator{ID: claims.Subject, Role: claims.Role})
		c.Next()
	}
}

// OperatorFrom returns the authenticated operator, or the zero Operator when
// the request was not authenticated.
func OperatorFrom(c *gin.Context) domain.Operator {
	if v, ok := c.Get(operatorContextKey); ok {
		if op, ok := v.(domain.Operator); ok {
			return op
		}
	}
	return domain.Operator{}
}

// IssueToken signs a token for op that Auth accepts until ttl elapses.
func IssueToken(secret, issuer string, op domain.Operator, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: op.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "UNAUTHORIZED"})
}
