// Package share mints and resolves revocable share links of a document.
package share

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/emrgen/docflow/internal/errs"
)

// TokenBytes is the entropy of a share token. Tokens are hex encoded, so a
// token string is twice as long.
const TokenBytes = 32

// Access is what a link holder may do with the document.
type Access string

const (
	View     Access = "view"
	Download Access = "download"
)

// ParseAccess validates an access level. Empty means view.
func ParseAccess(s string) (Access, error) {
	switch Access(s) {
	case "", View:
		return View, nil
	case Download:
		return Download, nil
	default:
		return "", errs.Invalid("accessLevel", "unknown access level %q", s)
	}
}

// Link is one share link. Deactivation is terminal.
type Link struct {
	Token     string     `json:"token"`
	Access    Access     `json:"accessLevel"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedBy string     `json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
	Active    bool       `json:"isActive"`
}

// Expired reports whether the link is time-barred at now.
func (l Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

func (l Link) clone() Link {
	if l.ExpiresAt != nil {
		at := *l.ExpiresAt
		l.ExpiresAt = &at
	}
	return l
}

// NewToken returns a fresh random token.
func NewToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("share token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// URL is the public address of a token under base.
func URL(base, token string) string {
	return strings.TrimRight(base, "/") + "/shared/" + token
}

// Links is the set of share links of one document, in creation order.
type Links struct {
	links []Link
}

// Restore rebuilds the set from persisted links.
func Restore(links []Link) *Links {
	l := &Links{links: make([]Link, 0, len(links))}
	for _, link := range links {
		l.links = append(l.links, link.clone())
	}
	return l
}

// Create mints a token and stores a new active link. An expiry in the past is
// accepted; the link is simply never resolvable.
func (l *Links) Create(access Access, expiresAt *time.Time, createdBy string, at time.Time) (Link, error) {
	if access == "" {
		access = View
	}
	if access != View && access != Download {
		return Link{}, errs.Invalid("accessLevel", "unknown access level %q", access)
	}

	token, err := NewToken()
	if err != nil {
		return Link{}, err
	}
	if _, ok := l.find(token); ok {
		return Link{}, fmt.Errorf("%w: share token collision", errs.ErrConflict)
	}

	link := Link{
		Token:     token,
		Access:    access,
		ExpiresAt: expiresAt,
		CreatedBy: createdBy,
		CreatedAt: at,
		Active:    true,
	}.clone()
	l.links = append(l.links, link)

	return link.clone(), nil
}

func (l *Links) find(token string) (int, bool) {
	for i, link := range l.links {
		if link.Token == token {
			return i, true
		}
	}
	return -1, false
}

// Get returns the link regardless of its state.
func (l *Links) Get(token string) (Link, bool) {
	i, ok := l.find(token)
	if !ok {
		return Link{}, false
	}
	return l.links[i].clone(), true
}

// Resolve returns the link only if it exists, is active and is not expired.
func (l *Links) Resolve(token string, now time.Time) (Link, error) {
	i, ok := l.find(token)
	if !ok || !l.links[i].Active {
		return Link{}, fmt.Errorf("%w: share link", errs.ErrNotFound)
	}
	if l.links[i].Expired(now) {
		return Link{}, fmt.Errorf("%w: share link expired at %s", errs.ErrExpired, l.links[i].ExpiresAt.Format(time.RFC3339))
	}
	return l.links[i].clone(), nil
}

// Active lists links that are active and unexpired at now.
func (l *Links) Active(now time.Time) []Link {
	out := make([]Link, 0, len(l.links))
	for _, link := range l.links {
		if link.Active && !link.Expired(now) {
			out = append(out, link.clone())
		}
	}
	return out
}

// All lists every link, inactive and expired ones included.
func (l *Links) All() []Link {
	out := make([]Link, len(l.links))
	for i, link := range l.links {
		out[i] = link.clone()
	}
	return out
}

// Tokens lists every token ever minted for the document.
func (l *Links) Tokens() []string {
	out := make([]string, len(l.links))
	for i, link := range l.links {
		out[i] = link.Token
	}
	return out
}

// Deactivate turns the link off for good. Deactivating an inactive link is
// allowed and changes nothing.
func (l *Links) Deactivate(token string) (Link, error) {
	i, ok := l.find(token)
	if !ok {
		return Link{}, fmt.Errorf("%w: share link", errs.ErrNotFound)
	}
	l.links[i].Active = false
	return l.links[i].clone(), nil
}

// Len returns the number of links.
func (l *Links) Len() int {
	if l == nil {
		return 0
	}
	return len(l.links)
}

// Clone returns an independent copy.
func (l *Links) Clone() *Links {
	if l == nil {
		return &Links{}
	}
	return Restore(l.links)
}

func (l *Links) MarshalJSON() ([]byte, error) {
	if l.links == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.links)
}

func (l *Links) UnmarshalJSON(data []byte) error {
	var links []Link
	if err := json.Unmarshal(data, &links); err != nil {
		return err
	}
	l.links = slices.Clone(links)
	return nil
}
