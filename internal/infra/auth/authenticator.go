// Package auth resolves the caller's user id. The strategy is chosen by
// AUTH_MODE; handlers only ever see a domain.Principal.
package auth

import (
	"errors"
	"fmt"

	"github.com/bcromer77/prooftimelines/internal/config"
	"github.com/bcromer77/prooftimelines/internal/domain"

	"github.com/gin-gonic/gin"
)

type Authenticator interface {
	Authenticate(c *gin.Context) (domain.Principal, error)
}

func NewAuthenticator(cfg config.Config) (Authenticator, error) {
	switch cfg.AuthMode {
	case config.AuthModeDevHeader:
		if cfg.IsProduction() {
			return nil, errors.New("dev-header identity is not allowed in production")
		}
		return NewHeaderAuthenticator(cfg.DevUserID), nil
	case config.AuthModeJWT:
		a, err := NewJWTAuthenticator([]byte(cfg.JWTSecret), cfg.JWTIssuer)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown auth mode: %s", cfg.AuthMode)
	}
}
