package service

import (
	"context"

	"github.com/emrgen/docflow/internal/approval"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/store"
)

// ApprovalStatus is the approval state of one document.
type ApprovalStatus struct {
	DocumentID string         `json:"documentId"`
	Title      string         `json:"title"`
	Flow       *approval.Flow `json:"approvalFlow"`
	Complete   bool           `json:"complete"`
}

// SetupApproval configures the approval flow of a document.
func (d *DocumentService) SetupApproval(ctx context.Context, id string, expect store.Revision, t approval.Type, levels []approval.Level, c Caller) (*Outcome, error) {
	return d.mutate(ctx, id, expect, func(doc *document.Document) (*document.Mutation, error) {
		return doc.SetupApproval(t, levels, d.op(c))
	})
}

// SubmitApproval records the caller's decision on a document.
func (d *DocumentService) SubmitApproval(ctx context.Context, id string, expect store.Revision, decision approval.Decision, comment string, c Caller) (*Outcome, error) {
	return d.mutate(ctx, id, expect, func(doc *document.Document) (*document.Mutation, error) {
		return doc.SubmitApproval(decision, comment, d.op(c))
	})
}

// ApprovalStatus reads the approval flow of a document.
func (d *DocumentService) ApprovalStatus(ctx context.Context, id string) (*ApprovalStatus, error) {
	doc, _, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	flow := doc.Approval.Clone()
	return &ApprovalStatus{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Flow:       flow,
		Complete:   flow.Complete(),
	}, nil
}

// VerifySignature finds the approval matching approver and signature.
func (d *DocumentService) VerifySignature(ctx context.Context, id, approver, signature string) (approval.Record, error) {
	doc, _, err := d.Get(ctx, id)
	if err != nil {
		return approval.Record{}, err
	}
	return doc.VerifyApproval(approver, signature)
}

// PendingApprovals lists documents whose current approval level waits for role.
func (d *DocumentService) PendingApprovals(ctx context.Context, role string) ([]*ApprovalStatus, error) {
	docs, err := d.store.ListDocuments(ctx, store.DocumentFilter{})
	if err != nil {
		return nil, err
	}

	pending := make([]*ApprovalStatus, 0)
	for _, doc := range docs {
		if doc.Approval == nil || !doc.Approval.PendingFor(role) {
			continue
		}
		pending = append(pending, &ApprovalStatus{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Flow:       doc.Approval.Clone(),
		})
	}

	return pending, nil
}
