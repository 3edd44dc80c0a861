package module

import (
	"net/http"
	"strings"

	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/document"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderUser      = "X-User"
	HeaderRole      = "X-Role"
	HeaderRequestID = "X-Request-ID"
	HeaderSessionID = "X-Session-ID"

	principalKey  = "principal"
	provenanceKey = "provenance"
)

// Principal reads the already authenticated user from the request headers.
// A request without a role acts as a viewer.
func Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := document.RoleViewer
		if raw := strings.TrimSpace(c.GetHeader(HeaderRole)); raw != "" {
			var err error
			if role, err = document.ParseRole(raw); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"success": false,
					"error":   "validation",
					"message": err.Error(),
				})
				return
			}
		}

		c.Set(principalKey, document.Principal{
			Username: strings.TrimSpace(c.GetHeader(HeaderUser)),
			Role:     role,
		})
		c.Next()
	}
}

// Provenance records where the request came from and tags it with a request id.
func Provenance() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)

		c.Set(provenanceKey, audit.Provenance{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			RequestID: requestID,
			SessionID: c.GetHeader(HeaderSessionID),
		})
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) document.Principal {
	p, _ := c.Get(principalKey)
	principal, _ := p.(document.Principal)
	return principal
}

func ProvenanceFrom(c *gin.Context) audit.Provenance {
	p, _ := c.Get(provenanceKey)
	prov, _ := p.(audit.Provenance)
	return prov
}
