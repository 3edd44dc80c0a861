package server

import (
	"net/http"
	"time"

	"github.com/emrgen/docflow/internal/errs"
	"github.com/emrgen/docflow/internal/module"
	"github.com/emrgen/docflow/internal/share"
	"github.com/gin-gonic/gin"
)

type shareRequest struct {
	Access    string     `json:"accessLevel"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type shareLink struct {
	share.Link
	URL string `json:"url"`
}

func (h *Handler) withURL(links ...share.Link) []shareLink {
	out := make([]shareLink, len(links))
	for i, l := range links {
		out[i] = shareLink{Link: l, URL: share.URL(h.shareBase, l.Token)}
	}
	return out
}

func (h *Handler) CreateShareLink(c *gin.Context) {
	expect, err := expectedRevision(c)
	if err != nil {
		abort(c, err)
		return
	}

	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errs.Invalid("body", "%v", err))
		return
	}
	access, err := share.ParseAccess(req.Access)
	if err != nil {
		abort(c, err)
		return
	}

	out, err := h.docs.CreateShareLink(c.Request.Context(), c.Param("id"), expect, access, req.ExpiresAt, caller(c))
	if err != nil {
		abort(c, err)
		return
	}

	setRevision(c, out.Revision)
	c.JSON(http.StatusCreated, gin.H{"success": true, "link": h.withURL(*out.Link)[0]})
}

func (h *Handler) ListShareLinks(c *gin.Context) {
	links, err := h.docs.ShareLinks(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "links": h.withURL(links...)})
}

func (h *Handler) DeactivateShareLink(c *gin.Context) {
	expect, err := expectedRevision(c)
	if err != nil {
		abort(c, err)
		return
	}

	out, err := h.docs.DeactivateShareLink(c.Request.Context(), c.Param("id"), expect, c.Param("token"), caller(c))
	if err != nil {
		abort(c, err)
		return
	}

	setRevision(c, out.Revision)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "share link deactivated"})
}

func (h *Handler) OpenShared(c *gin.Context) {
	view, err := h.docs.ResolveShareLink(c.Request.Context(), c.Param("token"), module.ProvenanceFrom(c))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "document": view})
}
