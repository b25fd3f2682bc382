package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/bcromer77/prooftimelines/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the user id in uid; sub is accepted when uid is absent.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid,omitempty"`
}

type JWTAuthenticator struct {
	secret []byte
	issuer string
}

func NewJWTAuthenticator(secret []byte, issuer string) (*JWTAuthenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("JWT_SECRET is required")
	}
	return &JWTAuthenticator{secret: secret, issuer: strings.TrimSpace(issuer)}, nil
}

func (a *JWTAuthenticator) Authenticate(c *gin.Context) (domain.Principal, error) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	userID, err := a.UserID(strings.TrimSpace(token))
	if err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return domain.Principal{UserID: userID, Method: "jwt"}, nil
}

// UserID validates tokenString and returns the user it was issued for.
func (a *JWTAuthenticator) UserID(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		return "", errors.New("token carries no user id")
	}
	return userID, nil
}

// IssueToken mints an HS256 token accepted by JWTAuthenticator.
func IssueToken(secret []byte, issuer, userID string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("JWT_SECRET is required")
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
