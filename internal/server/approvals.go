package server

import (
	"net/http"

	"github.com/emrgen/docflow/internal/approval"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/gin-gonic/gin"
)

type setupApprovalRequest struct {
	Type   approval.Type    `json:"type"`
	Levels []approval.Level `json:"levels"`
}

func (h *Handler) SetupApproval(c *gin.Context) {
	expect, err := expectedRevision(c)
	if err != nil {
		abort(c, err)
		return
	}

	var req setupApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errs.Invalid("body", "%v", err))
		return
	}

	out, err := h.docs.SetupApproval(c.Request.Context(), c.Param("id"), expect, req.Type, req.Levels, caller(c))
	if err != nil {
		abort(c, err)
		return
	}

	setRevision(c, out.Revision)
	c.JSON(http.StatusOK, gin.H{"success": true, "approvalFlow": out.Document.Approval})
}

type submitApprovalRequest struct {
	Decision approval.Decision `json:"status"`
	Comment  string            `json:"comments"`
}

func (h *Handler) SubmitApproval(c *gin.Context) {
	expect, err := expectedRevision(c)
	if err != nil {
		abort(c, err)
		return
	}

	var req submitApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errs.Invalid("body", "%v", err))
		return
	}

	out, err := h.docs.SubmitApproval(c.Request.Context(), c.Param("id"), expect, req.Decision, req.Comment, caller(c))
	if err != nil {
		abort(c, err)
		return
	}

	setRevision(c, out.Revision)
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"approval":     out.Record,
		"approvalFlow": out.Document.Approval,
		"complete":     out.Document.Approval.Complete(),
	})
}

func (h *Handler) ApprovalStatus(c *gin.Context) {
	status, err := h.docs.ApprovalStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": status})
}

func (h *Handler) PendingApprovals(c *gin.Context) {
	pending, err := h.docs.PendingApprovals(c.Request.Context(), c.Param("role"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "documents": pending, "count": len(pending)})
}

type verifyRequest struct {
	DocumentID string `json:"documentId"`
	Approver   string `json:"approver"`
	Signature  string `json:"signature"`
}

func (h *Handler) VerifySignature(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errs.Invalid("body", "%v", err))
		return
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"documentId", req.DocumentID},
		{"approver", req.Approver},
		{"signature", req.Signature},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		abort(c, errs.Missing(missing...))
		return
	}

	rec, err := h.docs.VerifySignature(c.Request.Context(), req.DocumentID, req.Approver, req.Signature)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "valid": true, "approval": rec})
}
