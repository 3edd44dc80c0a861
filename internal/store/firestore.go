package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/compress"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	documentsCollection = "documents"
	tokensCollection    = "share_tokens"
	auditCollection     = "audit_logs"
	countersCollection  = "counters"
	auditCounter        = "audit"
)

var _ Store = (*FirestoreStore)(nil)

// FirestoreStore keeps documents in Cloud Firestore. Queryable fields are
// stored next to the compressed json record.
type FirestoreStore struct {
	client   *firestore.Client
	compress compress.Compress
	tx       *fsTx
}

// fsTx buffers writes so that every read of a transaction happens before its
// first write.
type fsTx struct {
	tx     *firestore.Transaction
	writes []func(tx *firestore.Transaction) error
	seq    int64
	seqSet bool
}

type fsDocument struct {
	Revision   int64     `firestore:"revision"`
	Title      string    `firestore:"title"`
	Category   string    `firestore:"category"`
	Status     string    `firestore:"status"`
	Tags       []string  `firestore:"tags"`
	Tokens     []string  `firestore:"tokens"`
	UploadedAt time.Time `firestore:"uploadedAt"`
	Codec      string    `firestore:"codec"`
	Data       []byte    `firestore:"data"`
}

type fsToken struct {
	DocumentID string `firestore:"documentId"`
}

type fsAudit struct {
	Seq        int64  `firestore:"seq"`
	DocumentID string `firestore:"documentId"`
	Actor      string `firestore:"actor"`
	Kind       string `firestore:"kind"`
	Entry      string `firestore:"entry"`
}

type fsCounter struct {
	Value int64 `firestore:"value"`
}

func NewFirestoreStore(client *firestore.Client, c compress.Compress) *FirestoreStore {
	return &FirestoreStore{client: client, compress: c}
}

// NewFirestoreClient creates a Firestore client for projectID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

func (f *FirestoreStore) Close() error {
	return f.client.Close()
}

// run executes fn inside the bound transaction, or a fresh one.
func (f *FirestoreStore) run(ctx context.Context, fn func(s *FirestoreStore) error) error {
	if f.tx != nil {
		return fn(f)
	}
	return f.Transaction(ctx, func(tx Store) error {
		return fn(tx.(*FirestoreStore))
	})
}

func (f *FirestoreStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if f.tx != nil {
		return fn(f)
	}

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		state := &fsTx{tx: tx}
		if err := fn(&FirestoreStore{client: f.client, compress: f.compress, tx: state}); err != nil {
			return err
		}
		for _, w := range state.writes {
			if err := w(tx); err != nil {
				return err
			}
		}
		return nil
	}, firestore.MaxAttempts(1))

	return firestoreErr(err)
}

func firestoreErr(err error) error {
	switch status.Code(err) {
	case codes.Aborted, codes.AlreadyExists:
		return fmt.Errorf("%w: %v", errs.ErrConflict, err)
	}
	return err
}

func (f *FirestoreStore) write(w func(tx *firestore.Transaction) error) {
	f.tx.writes = append(f.tx.writes, w)
}

func (f *FirestoreStore) docRef(id string) *firestore.DocumentRef {
	return f.client.Collection(documentsCollection).Doc(id)
}

func (f *FirestoreStore) load(id string) (*fsDocument, *document.Document, error) {
	snap, err := f.tx.tx.Get(f.docRef(id))
	if status.Code(err) == codes.NotFound {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return f.decodeSnapshot(snap)
}

func (f *FirestoreStore) decodeSnapshot(snap *firestore.DocumentSnapshot) (*fsDocument, *document.Document, error) {
	var row fsDocument
	if err := snap.DataTo(&row); err != nil {
		return nil, nil, err
	}
	var doc document.Document
	if err := decodeWith(row.Codec, row.Data, &doc); err != nil {
		return nil, nil, err
	}
	return &row, &doc, nil
}

func (f *FirestoreStore) encode(doc *document.Document, rev Revision) (*fsDocument, error) {
	raw, err := f.encodeData(doc)
	if err != nil {
		return nil, err
	}
	return &fsDocument{
		Revision:   int64(rev),
		Title:      doc.Title,
		Category:   doc.Category,
		Status:     doc.Status,
		Tags:       doc.Tags,
		Tokens:     doc.Links.Tokens(),
		UploadedAt: doc.UploadedAt,
		Codec:      f.compress.Name(),
		Data:       raw,
	}, nil
}

func (f *FirestoreStore) encodeData(doc *document.Document) ([]byte, error) {
	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return f.compress.Encode(data)
}

// claimTokens reserves tokens not yet owned by the document.
func (f *FirestoreStore) claimTokens(id string, owned, tokens []string) {
	for _, token := range tokens {
		if slices.Contains(owned, token) {
			continue
		}
		ref := f.client.Collection(tokensCollection).Doc(token)
		f.write(func(tx *firestore.Transaction) error {
			return tx.Create(ref, fsToken{DocumentID: id})
		})
	}
}

func (f *FirestoreStore) CreateDocument(ctx context.Context, doc *document.Document) (Revision, error) {
	err := f.run(ctx, func(s *FirestoreStore) error {
		row, _, err := s.load(doc.ID)
		if err != nil {
			return err
		}
		if row != nil {
			return errs.Conflictf("document %s already exists", doc.ID)
		}

		next, err := s.encode(doc, 1)
		if err != nil {
			return err
		}
		ref := s.docRef(doc.ID)
		s.write(func(tx *firestore.Transaction) error {
			return tx.Create(ref, next)
		})
		s.claimTokens(doc.ID, nil, next.Tokens)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (f *FirestoreStore) GetDocument(ctx context.Context, id string) (*document.Document, Revision, error) {
	var (
		doc *document.Document
		rev Revision
	)
	err := f.run(ctx, func(s *FirestoreStore) error {
		row, d, err := s.load(id)
		if err != nil {
			return err
		}
		if row == nil {
			return errs.NotFoundf("document %s", id)
		}
		doc, rev = d, Revision(row.Revision)
		return nil
	})
	return doc, rev, err
}

func (f *FirestoreStore) UpdateDocument(ctx context.Context, doc *document.Document, expected Revision) (Revision, error) {
	next := expected + 1
	err := f.run(ctx, func(s *FirestoreStore) error {
		row, _, err := s.load(doc.ID)
		if err != nil {
			return err
		}
		if row == nil || Revision(row.Revision) != expected {
			var stored Revision
			if row != nil {
				stored = Revision(row.Revision)
			}
			return missOrConflict(row != nil, doc.ID, stored, expected)
		}

		updated, err := s.encode(doc, next)
		if err != nil {
			return err
		}
		ref := s.docRef(doc.ID)
		s.write(func(tx *firestore.Transaction) error {
			return tx.Set(ref, updated)
		})
		s.claimTokens(doc.ID, row.Tokens, updated.Tokens)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (f *FirestoreStore) DeleteDocument(ctx context.Context, id string, expected Revision) error {
	return f.run(ctx, func(s *FirestoreStore) error {
		row, _, err := s.load(id)
		if err != nil {
			return err
		}
		if row == nil || Revision(row.Revision) != expected {
			var stored Revision
			if row != nil {
				stored = Revision(row.Revision)
			}
			return missOrConflict(row != nil, id, stored, expected)
		}

		ref := s.docRef(id)
		s.write(func(tx *firestore.Transaction) error {
			return tx.Delete(ref)
		})
		for _, token := range row.Tokens {
			tref := s.client.Collection(tokensCollection).Doc(token)
			s.write(func(tx *firestore.Transaction) error {
				return tx.Delete(tref)
			})
		}
		return nil
	})
}

func (f *FirestoreStore) GetDocumentByShareToken(ctx context.Context, token string) (*document.Document, Revision, error) {
	var (
		doc *document.Document
		rev Revision
	)
	err := f.run(ctx, func(s *FirestoreStore) error {
		snap, err := s.tx.tx.Get(s.client.Collection(tokensCollection).Doc(token))
		if status.Code(err) == codes.NotFound {
			return errs.NotFoundf("share link")
		}
		if err != nil {
			return err
		}
		var t fsToken
		if err := snap.DataTo(&t); err != nil {
			return err
		}

		row, d, err := s.load(t.DocumentID)
		if err != nil {
			return err
		}
		if row == nil {
			return errs.NotFoundf("share link")
		}
		doc, rev = d, Revision(row.Revision)
		return nil
	})
	return doc, rev, err
}

func (f *FirestoreStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]*document.Document, error) {
	q := f.client.Collection(documentsCollection).Query
	if filter.Category != "" {
		q = q.Where("category", "==", filter.Category)
	}
	if filter.Status != "" {
		q = q.Where("status", "==", filter.Status)
	}
	if len(filter.Tags) > 0 {
		q = q.Where("tags", "array-contains-any", filter.Tags)
	}

	var docs []*document.Document
	iter := f.documents(ctx, q)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		_, doc, err := f.decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		if matchDocument(doc, filter) {
			docs = append(docs, doc)
		}
	}

	return sortDocuments(docs, filter.Limit), nil
}

func (f *FirestoreStore) documents(ctx context.Context, q firestore.Query) *firestore.DocumentIterator {
	if f.tx != nil {
		return f.tx.tx.Documents(q)
	}
	return q.Documents(ctx)
}

// nextSeq reads the audit counter once per transaction.
func (f *FirestoreStore) nextSeq() (int64, error) {
	ref := f.client.Collection(countersCollection).Doc(auditCounter)
	if !f.tx.seqSet {
		snap, err := f.tx.tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return 0, err
		default:
			var c fsCounter
			if err := snap.DataTo(&c); err != nil {
				return 0, err
			}
			f.tx.seq = c.Value
		}
		f.tx.seqSet = true
		f.write(func(tx *firestore.Transaction) error {
			return tx.Set(ref, fsCounter{Value: f.tx.seq})
		})
	}
	f.tx.seq++
	return f.tx.seq, nil
}

func (f *FirestoreStore) AppendAudit(ctx context.Context, entry *audit.Entry) error {
	return f.run(ctx, func(s *FirestoreStore) error {
		seq, err := s.nextSeq()
		if err != nil {
			return err
		}

		stored := *entry
		stored.Seq = seq
		raw, err := encodeJSON(&stored)
		if err != nil {
			return err
		}
		row := fsAudit{
			Seq:        seq,
			DocumentID: entry.DocumentID,
			Actor:      entry.Actor,
			Kind:       string(entry.Kind),
			Entry:      raw,
		}
		ref := s.client.Collection(auditCollection).Doc(entry.ID.String())
		s.write(func(tx *firestore.Transaction) error {
			return tx.Create(ref, row)
		})
		entry.Seq = seq
		return nil
	})
}

func (f *FirestoreStore) ListAudit(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	q := f.client.Collection(auditCollection).Where("seq", ">", filter.AfterSeq)
	if filter.DocumentID != "" {
		q = q.Where("documentId", "==", filter.DocumentID)
	}
	if filter.Actor != "" {
		q = q.Where("actor", "==", filter.Actor)
	}
	if filter.Kind != "" {
		q = q.Where("kind", "==", string(filter.Kind))
	}
	if filter.Ascending {
		q = q.OrderBy("seq", firestore.Asc)
	} else {
		q = q.OrderBy("seq", firestore.Desc)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var entries []*audit.Entry
	iter := f.documents(ctx, q)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		e, err := decodeFsAudit(snap)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeFsAudit(snap *firestore.DocumentSnapshot) (*audit.Entry, error) {
	var row fsAudit
	if err := snap.DataTo(&row); err != nil {
		return nil, err
	}
	e := &audit.Entry{}
	if err := decodeJSON(row.Entry, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (f *FirestoreStore) GetAudit(ctx context.Context, id uuid.UUID) (*audit.Entry, error) {
	var e *audit.Entry
	err := f.run(ctx, func(s *FirestoreStore) error {
		snap, err := s.tx.tx.Get(s.client.Collection(auditCollection).Doc(id.String()))
		if status.Code(err) == codes.NotFound {
			return errs.NotFoundf("audit entry %s", id)
		}
		if err != nil {
			return err
		}
		e, err = decodeFsAudit(snap)
		return err
	})
	return e, err
}

func (f *FirestoreStore) CountAudit(ctx context.Context) (int64, error) {
	snap, err := f.client.Collection(countersCollection).Doc(auditCounter).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var c fsCounter
	if err := snap.DataTo(&c); err != nil {
		return 0, err
	}
	return c.Value, nil
}

func (f *FirestoreStore) Migrate() error {
	return nil
}
