package auth

import (
	"strings"

	"github.com/bcromer77/prooftimelines/internal/domain"

	"github.com/gin-gonic/gin"
)

const DevUserHeader = "X-Dev-User-Id"

// HeaderAuthenticator trusts the X-Dev-User-Id header. Development only.
type HeaderAuthenticator struct {
	defaultUserID string
}

func NewHeaderAuthenticator(defaultUserID string) *HeaderAuthenticator {
	return &HeaderAuthenticator{defaultUserID: strings.TrimSpace(defaultUserID)}
}

func (h *HeaderAuthenticator) Authenticate(c *gin.Context) (domain.Principal, error) {
	userID := strings.TrimSpace(c.GetHeader(DevUserHeader))
	if userID == "" {
		userID = h.defaultUserID
	}
	if userID == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return domain.Principal{UserID: userID, Method: "dev-header"}, nil
}
