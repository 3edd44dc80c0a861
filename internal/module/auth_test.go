package module

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emrgen/docflow/internal/document"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		user     string
		role     string
		wantCode int
		want     document.Principal
	}{
		{"admin", "ada", "Admin", http.StatusOK, document.Principal{Username: "ada", Role: document.RoleAdmin}},
		{"no role is viewer", "vic", "", http.StatusOK, document.Principal{Username: "vic", Role: document.RoleViewer}},
		{"unknown role", "eve", "Root", http.StatusBadRequest, document.Principal{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got document.Principal
			r := gin.New()
			r.Use(Principal(), Provenance())
			r.GET("/", func(c *gin.Context) {
				got = PrincipalFrom(c)
				assert.NotEmpty(t, ProvenanceFrom(c).RequestID)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderUser, tt.user)
			req.Header.Set(HeaderRole, tt.role)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.want, got)
			if tt.wantCode == http.StatusOK {
				assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
			}
		})
	}
}
