package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/emrgen/docflow/internal/blob"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/emrgen/docflow/internal/module"
	"github.com/emrgen/docflow/internal/service"
	"github.com/emrgen/docflow/internal/store"
	"github.com/gin-gonic/gin"
)

const maxUploadSize = 32 << 20

// Handler serves the document api over a DocumentService.
type Handler struct {
	docs      *service.DocumentService
	shareBase string
}

func NewHandler(docs *service.DocumentService, shareBase string) *Handler {
	return &Handler{docs: docs, shareBase: shareBase}
}

func caller(c *gin.Context) service.Caller {
	return service.Caller{
		By:         module.PrincipalFrom(c),
		Provenance: module.ProvenanceFrom(c),
	}
}

// withoutData hides file bytes from metadata responses.
func withoutData(doc *document.Document) *document.Document {
	if doc == nil || doc.File == nil || len(doc.File.Data) == 0 {
		return doc
	}
	c := doc.Clone()
	c.File.Data = nil
	return c
}

type fileUpload struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

type createRequest struct {
	Title       string      `json:"title"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Status      string      `json:"status"`
	Tags        []string    `json:"tags"`
	Logs        []string    `json:"logs"`
	UploadedBy  string      `json:"uploadedBy"`
	File        *fileUpload `json:"file"`
}

func (r createRequest) draft() document.Draft {
	d := document.Draft{
		Title:       r.Title,
		Category:    r.Category,
		Description: r.Description,
		Status:      r.Status,
		Tags:        r.Tags,
		Logs:        r.Logs,
		UploadedBy:  r.UploadedBy,
	}
	if r.File != nil {
		d.File = blob.Inspect(r.File.Name, r.File.ContentType, r.File.Data)
	}
	return d
}

// bindCreate accepts either a json body or a multipart form with a "file" part.
func bindCreate(c *gin.Context) (createRequest, error) {
	var req createRequest
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, errs.Invalid("body", "%v", err)
		}
		return req, nil
	}

	req = createRequest{
		Title:       c.PostForm("title"),
		Category:    c.PostForm("category"),
		Description: c.PostForm("description"),
		Status:      c.PostForm("status"),
		Tags:        splitList(c.PostForm("tags")),
		UploadedBy:  c.PostForm("uploadedBy"),
	}

	header, err := c.FormFile("file")
	if err == http.ErrMissingFile {
		return req, nil
	}
	if err != nil {
		return req, errs.Invalid("file", "%v", err)
	}
	if header.Size > maxUploadSize {
		return req, errs.Invalid("file", "file is larger than %d bytes", maxUploadSize)
	}

	f, err := header.Open()
	if err != nil {
		return req, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return req, err
	}
	req.File = &fileUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}

	return req, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *Handler) CreateDocument(c *gin.Context) {
	req, err := bindCreate(c)
	if err != nil {
		abort(c, err)
		return
	}

	out, err := h.docs.Create(c.Request.Context(), req.draft(), caller(c))
	if err != nil {
		abort(c, err)
		return
	}

	setRevision(c, out.Revision)
	c.JSON(http.StatusCreated, gin.H{"success": true, "document": withoutData(out.Document)})
}

func (h *Handler) ListDocuments(c *gin.Context) {
	filter := store.DocumentFilter{
		Tags:     splitList(c.Query("tags")),
		Category: c.Query("category"),
		Status:   c.Query("status"),
		Search:   c.Query("search"),
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			abort(c, errs.Invalid("limit", "must be a non-negative number, got %q", limit))
			return
		}
		filter.Limit = n
	}

	docs, err := h.docs.List(c.Request.Context(), filter)
	if err != nil {
		abort(c, err)
		return
	}

	for i, doc := range docs {
		docs[i] = withoutData(doc)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "documents": docs, "count": len(docs)})
}

func (h *Handler) GetDocument(c *gin.Context) {
	doc, rev, err := h.docs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	setRevision(c, rev)
	c.JSON(http.StatusOK, gin.H{"success": true, "document": withoutData(doc)})
}

func (h *Handler) GetFile(c *gin.Context) {
	f, err := h.docs.File(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	c.Data(http.StatusOK, contentType, f.Data)
}

func (h *Handler) UpdateDocument(c *gin.Context) {
	expect, err := expectedRevision(c)
	if err != nil {
		abort(c, err)
		return
	}

	var patch document.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abort(c, errs.Invalid("body", "%v", err))
		return
	}

	out, err := h.docs.Update(c.Request.Context(), c.Param("id"), expect, patch, caller(c))
	if err != nil {
		abort(c, err)
		return
	}

	setRevision(c, out.Revision)
	c.JSON(http.StatusOK, gin.H{"success": true, "document": withoutData(out.Document)})
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	expect, err := expectedRevision(c)
	if err != nil {
		abort(c, err)
		return
	}

	if err := h.docs.Delete(c.Request.Context(), c.Param("id"), expect, caller(c)); err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "document deleted"})
}

type visibilityRequest struct {
	Public *bool `json:"isPublic"`
}

func (h *Handler) SetVisibility(c *gin.Context) {
	expect, err := expectedRevision(c)
	if err != nil {
		abort(c, err)
		return
	}

	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errs.Invalid("body", "%v", err))
		return
	}
	if req.Public == nil {
		abort(c, errs.Missing("isPublic"))
		return
	}

	out, err := h.docs.SetVisibility(c.Request.Context(), c.Param("id"), expect, *req.Public, caller(c))
	if err != nil {
		abort(c, err)
		return
	}

	setRevision(c, out.Revision)
	c.JSON(http.StatusOK, gin.H{"success": true, "isPublic": out.Document.Public})
}

func (h *Handler) ListVersions(c *gin.Context) {
	versions, err := h.docs.Versions(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "versions": versions, "currentVersion": len(versions)})
}

func (h *Handler) GetVersion(c *gin.Context) {
	n, err := intParam(c, "version")
	if err != nil {
		abort(c, err)
		return
	}

	v, err := h.docs.Version(c.Request.Context(), c.Param("id"), n)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "version": v})
}

func (h *Handler) CompareVersions(c *gin.Context) {
	v1, err := intParam(c, "v1")
	if err != nil {
		abort(c, err)
		return
	}
	v2, err := intParam(c, "v2")
	if err != nil {
		abort(c, err)
		return
	}

	diff, err := h.docs.Diff(c.Request.Context(), c.Param("id"), v1, v2)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "version1": v1, "version2": v2, "differences": diff})
}

func (h *Handler) RevertVersion(c *gin.Context) {
	expect, err := expectedRevision(c)
	if err != nil {
		abort(c, err)
		return
	}
	n, err := intParam(c, "version")
	if err != nil {
		abort(c, err)
		return
	}

	out, err := h.docs.Revert(c.Request.Context(), c.Param("id"), expect, n, caller(c))
	if err != nil {
		abort(c, err)
		return
	}

	setRevision(c, out.Revision)
	c.JSON(http.StatusOK, gin.H{"success": true, "document": withoutData(out.Document)})
}
