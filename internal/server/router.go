package server

import (
	"net/http"

	"github.com/emrgen/docflow/internal/module"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the http api.
func NewRouter(h *Handler) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestTime(), module.Provenance(), module.Principal())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "docflow"})
	})

	engine.GET("/shared/:token", h.OpenShared)

	api := engine.Group("/api")
	{
		api.GET("/dashboard-stats", h.DashboardStats)
		api.GET("/shared/:token", h.OpenShared)

		docs := api.Group("/documents")
		docs.POST("", h.CreateDocument)
		docs.GET("", h.ListDocuments)
		docs.GET("/:id", h.GetDocument)
		docs.PUT("/:id", h.UpdateDocument)
		docs.DELETE("/:id", h.DeleteDocument)
		docs.GET("/:id/file", h.GetFile)
		docs.PATCH("/:id/visibility", h.SetVisibility)

		docs.GET("/:id/versions", h.ListVersions)
		docs.GET("/:id/versions/:version", h.GetVersion)
		docs.GET("/:id/compare/:v1/:v2", h.CompareVersions)
		docs.POST("/:id/revert/:version", h.RevertVersion)

		docs.GET("/:id/approvals", h.ApprovalStatus)
		docs.POST("/:id/approve", h.SubmitApproval)
		docs.POST("/:id/setup-approval", h.SetupApproval)

		docs.POST("/:id/share", h.CreateShareLink)
		docs.GET("/:id/links", h.ListShareLinks)
		docs.DELETE("/:id/links/:token", h.DeactivateShareLink)

		approvals := api.Group("/approvals")
		approvals.GET("/pending/:role", h.PendingApprovals)
		approvals.POST("/verify-signature", h.VerifySignature)

		audits := api.Group("/audit-logs")
		audits.GET("", h.ListAudit)
		audits.GET("/:id", h.GetAudit)
	}

	return engine
}
