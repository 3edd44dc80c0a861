package server

import (
	"net/http"
	"strconv"

	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handler) ListAudit(c *gin.Context) {
	filter := audit.Filter{
		DocumentID: c.Query("documentId"),
		Actor:      c.Query("actor"),
		Kind:       audit.Kind(c.Query("kind")),
		Ascending:  c.Query("order") == "asc",
		Limit:      100,
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			abort(c, errs.Invalid("limit", "must be a non-negative number, got %q", v))
			return
		}
		filter.Limit = n
	}
	if v := c.Query("afterSeq"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			abort(c, errs.Invalid("afterSeq", "must be a number, got %q", v))
			return
		}
		filter.AfterSeq = n
	}

	entries, err := h.docs.AuditLog(c.Request.Context(), filter)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "auditLogs": entries, "count": len(entries)})
}

func (h *Handler) GetAudit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abort(c, errs.Invalid("id", "not a uuid: %q", c.Param("id")))
		return
	}

	entry, err := h.docs.AuditEntry(c.Request.Context(), id)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "auditLog": entry})
}

func (h *Handler) DashboardStats(c *gin.Context) {
	stats, err := h.docs.Stats(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	for i, doc := range stats.RecentUploads {
		stats.RecentUploads[i] = withoutData(doc)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}
