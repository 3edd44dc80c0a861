package docflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emrgen/docflow/internal/approval"
	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/emrgen/docflow/internal/module"
	"github.com/emrgen/docflow/internal/service"
	"github.com/emrgen/docflow/internal/share"
	"github.com/emrgen/docflow/internal/store"
	"github.com/emrgen/docflow/internal/version"
)

// Client talks to the docflow http api as one user.
type Client struct {
	base string
	user string
	role string
	http *http.Client
}

func NewClient(base, user, role string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		user: user,
		role: role,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a failed api call. It unwraps to the matching errs sentinel.
type APIError struct {
	Status  int      `json:"-"`
	Kind    string   `json:"error"`
	Message string   `json:"message"`
	Fields  []string `json:"fields"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Kind {
	case errs.KindValidation.String():
		return errs.ErrValidation
	case errs.KindNotFound.String():
		return errs.ErrNotFound
	case errs.KindForbidden.String():
		return errs.ErrForbidden
	case errs.KindConflict.String():
		return errs.ErrConflict
	case errs.KindDuplicateApproval.String():
		return errs.ErrDuplicateApproval
	case errs.KindExpired.String():
		return errs.ErrExpired
	case errs.KindInconsistent.String():
		return errs.ErrInconsistent
	}
	return nil
}

type call struct {
	method string
	path   string
	query  url.Values
	body   any
	expect store.Revision
}

// do sends the call and decodes the response into out. It returns the
// revision carried by the ETag header, if any.
func (c *Client) do(ctx context.Context, r call, out any) (store.Revision, error) {
	u := c.base + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		buf, err := json.Marshal(r.body)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return 0, err
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set(module.HeaderUser, c.user)
	}
	if c.role != "" {
		req.Header.Set(module.HeaderRole, c.role)
	}
	if r.expect != store.AnyRevision {
		req.Header.Set("If-Match", strconv.Quote(strconv.FormatInt(int64(r.expect), 10)))
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, err
	}

	if res.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: res.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return 0, apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return 0, fmt.Errorf("failed to decode %s %s: %w", r.method, r.path, err)
		}
	}

	return etagRevision(res.Header.Get("ETag")), nil
}

func etagRevision(etag string) store.Revision {
	n, err := strconv.ParseInt(strings.Trim(strings.TrimPrefix(etag, "W/"), `"`), 10, 64)
	if err != nil {
		return store.AnyRevision
	}
	return store.Revision(n)
}

func documentPath(id string, parts ...string) string {
	p := "/api/documents/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// FileUpload is the file part of a new document.
type FileUpload struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// CreateRequest describes a new document.
type CreateRequest struct {
	Title       string      `json:"title"`
	Category    string      `json:"category"`
	Description string      `json:"description,omitempty"`
	Status      string      `json:"status,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Logs        []string    `json:"logs,omitempty"`
	File        *FileUpload `json:"file,omitempty"`
}

type documentResponse struct {
	Document *document.Document `json:"document"`
}

func (c *Client) CreateDocument(ctx context.Context, req CreateRequest) (*document.Document, store.Revision, error) {
	var res documentResponse
	rev, err := c.do(ctx, call{method: http.MethodPost, path: "/api/documents", body: req}, &res)
	return res.Document, rev, err
}

func (c *Client) GetDocument(ctx context.Context, id string) (*document.Document, store.Revision, error) {
	var res documentResponse
	rev, err := c.do(ctx, call{method: http.MethodGet, path: documentPath(id)}, &res)
	return res.Document, rev, err
}

func (c *Client) ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]*document.Document, error) {
	q := url.Values{}
	if len(filter.Tags) > 0 {
		q.Set("tags", strings.Join(filter.Tags, ","))
	}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	var res struct {
		Documents []*document.Document `json:"documents"`
	}
	_, err := c.do(ctx, call{method: http.MethodGet, path: "/api/documents", query: q}, &res)
	return res.Documents, err
}

// File downloads the file of a document.
func (c *Client) File(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+documentPath(id, "file"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(module.HeaderUser, c.user)
	req.Header.Set(module.HeaderRole, c.role)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: res.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return nil, apiErr
	}

	return data, nil
}

func (c *Client) UpdateDocument(ctx context.Context, id string, expect store.Revision, patch document.Patch) (*document.Document, store.Revision, error) {
	var res documentResponse
	rev, err := c.do(ctx, call{method: http.MethodPut, path: documentPath(id), body: patch, expect: expect}, &res)
	return res.Document, rev, err
}

func (c *Client) DeleteDocument(ctx context.Context, id string, expect store.Revision) error {
	_, err := c.do(ctx, call{method: http.MethodDelete, path: documentPath(id), expect: expect}, nil)
	return err
}

func (c *Client) SetVisibility(ctx context.Context, id string, public bool) (store.Revision, error) {
	return c.do(ctx, call{method: http.MethodPatch, path: documentPath(id, "visibility"), body: map[string]bool{"isPublic": public}}, nil)
}

func (c *Client) Versions(ctx context.Context, id string) ([]version.Entry, error) {
	var res struct {
		Versions []version.Entry `json:"versions"`
	}
	_, err := c.do(ctx, call{method: http.MethodGet, path: documentPath(id, "versions")}, &res)
	return res.Versions, err
}

func (c *Client) Diff(ctx context.Context, id string, v1, v2 int) (version.Diff, error) {
	var res struct {
		Differences version.Diff `json:"differences"`
	}
	_, err := c.do(ctx, call{method: http.MethodGet, path: documentPath(id, "compare", strconv.Itoa(v1), strconv.Itoa(v2))}, &res)
	return res.Differences, err
}

func (c *Client) Revert(ctx context.Context, id string, n int) (*document.Document, store.Revision, error) {
	var res documentResponse
	rev, err := c.do(ctx, call{method: http.MethodPost, path: documentPath(id, "revert", strconv.Itoa(n))}, &res)
	return res.Document, rev, err
}

func (c *Client) SetupApproval(ctx context.Context, id string, t approval.Type, levels []approval.Level) (*approval.Flow, error) {
	var res struct {
		Flow *approval.Flow `json:"approvalFlow"`
	}
	body := map[string]any{"type": t, "levels": levels}
	_, err := c.do(ctx, call{method: http.MethodPost, path: documentPath(id, "setup-approval"), body: body}, &res)
	return res.Flow, err
}

// SubmitApproval returns the recorded decision and whether the flow is complete.
func (c *Client) SubmitApproval(ctx context.Context, id string, d approval.Decision, comment string) (approval.Record, bool, error) {
	var res struct {
		Approval approval.Record `json:"approval"`
		Complete bool            `json:"complete"`
	}
	body := map[string]any{"status": d, "comments": comment}
	_, err := c.do(ctx, call{method: http.MethodPost, path: documentPath(id, "approve"), body: body}, &res)
	return res.Approval, res.Complete, err
}

func (c *Client) ApprovalStatus(ctx context.Context, id string) (*service.ApprovalStatus, error) {
	var res struct {
		Status *service.ApprovalStatus `json:"status"`
	}
	_, err := c.do(ctx, call{method: http.MethodGet, path: documentPath(id, "approvals")}, &res)
	return res.Status, err
}

func (c *Client) PendingApprovals(ctx context.Context, role string) ([]*service.ApprovalStatus, error) {
	var res struct {
		Documents []*service.ApprovalStatus `json:"documents"`
	}
	_, err := c.do(ctx, call{method: http.MethodGet, path: "/api/approvals/pending/" + url.PathEscape(role)}, &res)
	return res.Documents, err
}

func (c *Client) VerifySignature(ctx context.Context, id, approver, signature string) (approval.Record, error) {
	var res struct {
		Approval approval.Record `json:"approval"`
	}
	body := map[string]string{"documentId": id, "approver": approver, "signature": signature}
	_, err := c.do(ctx, call{method: http.MethodPost, path: "/api/approvals/verify-signature", body: body}, &res)
	return res.Approval, err
}

// ShareLink is a share link with its public address.
type ShareLink struct {
	share.Link
	URL string `json:"url"`
}

func (c *Client) CreateShareLink(ctx context.Context, id string, access share.Access, expiresAt *time.Time) (ShareLink, error) {
	var res struct {
		Link ShareLink `json:"link"`
	}
	body := map[string]any{"accessLevel": access}
	if expiresAt != nil {
		body["expiresAt"] = expiresAt.UTC()
	}
	_, err := c.do(ctx, call{method: http.MethodPost, path: documentPath(id, "share"), body: body}, &res)
	return res.Link, err
}

func (c *Client) ShareLinks(ctx context.Context, id string) ([]ShareLink, error) {
	var res struct {
		Links []ShareLink `json:"links"`
	}
	_, err := c.do(ctx, call{method: http.MethodGet, path: documentPath(id, "links")}, &res)
	return res.Links, err
}

func (c *Client) DeactivateShareLink(ctx context.Context, id, token string) error {
	_, err := c.do(ctx, call{method: http.MethodDelete, path: documentPath(id, "links", token)}, nil)
	return err
}

// OpenShared resolves a share token the way an anonymous holder would.
func (c *Client) OpenShared(ctx context.Context, token string) (*share.Shared, error) {
	var res struct {
		Document *share.Shared `json:"document"`
	}
	_, err := c.do(ctx, call{method: http.MethodGet, path: "/api/shared/" + url.PathEscape(token)}, &res)
	return res.Document, err
}

func (c *Client) AuditLog(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	q := url.Values{}
	if filter.DocumentID != "" {
		q.Set("documentId", filter.DocumentID)
	}
	if filter.Actor != "" {
		q.Set("actor", filter.Actor)
	}
	if filter.Kind != "" {
		q.Set("kind", string(filter.Kind))
	}
	if filter.Ascending {
		q.Set("order", "asc")
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.AfterSeq > 0 {
		q.Set("afterSeq", strconv.FormatInt(filter.AfterSeq, 10))
	}

	var res struct {
		Entries []*audit.Entry `json:"auditLogs"`
	}
	_, err := c.do(ctx, call{method: http.MethodGet, path: "/api/audit-logs", query: q}, &res)
	return res.Entries, err
}

func (c *Client) Stats(ctx context.Context) (*service.Stats, error) {
	var res struct {
		Stats *service.Stats `json:"stats"`
	}
	_, err := c.do(ctx, call{method: http.MethodGet, path: "/api/dashboard-stats"}, &res)
	return res.Stats, err
}
