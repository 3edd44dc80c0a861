package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/compress"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	docPrefix     = "doc/"
	tokenPrefix   = "token/"
	auditPrefix   = "audit/"
	auditIDPrefix = "auditid/"
	auditSeqKey   = "counter/audit"

	// commit attempts when badger reports a read-write conflict
	maxTxnAttempts = 5
)

var _ Store = (*BadgerStore)(nil)

// BadgerStore keeps documents as json records in an embedded badger
// database. Share tokens and audit ids have their own index keys.
type BadgerStore struct {
	db       *badger.DB
	compress compress.Compress
	txn      *badger.Txn
}

// NewBadgerStore opens the database at path. An empty path opens an in-memory
// database.
func NewBadgerStore(path string, c compress.Compress) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}

	return &BadgerStore{db: db, compress: c}, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func (b *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	if b.txn != nil {
		return fn(b.txn)
	}
	return badgerErr(b.retry(fn))
}

// retry reruns fn in a fresh transaction while the commit loses a read-write
// race. Every attempt rereads what it checks, so a moved document revision
// still ends in a revision conflict.
func (b *BadgerStore) retry(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxTxnAttempts; attempt++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		logrus.Debugf("badger txn conflict, attempt %d", attempt)
	}
	return err
}

func (b *BadgerStore) view(fn func(txn *badger.Txn) error) error {
	if b.txn != nil {
		return fn(b.txn)
	}
	return b.db.View(fn)
}

func badgerErr(err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", errs.ErrConflict, err)
	}
	return err
}

type envelope struct {
	Codec string `json:"codec"`
	Data  []byte `json:"data"`
}

func (b *BadgerStore) encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if data, err = b.compress.Encode(data); err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Codec: b.compress.Name(), Data: data})
}

func decode(raw []byte, v any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	return decodeWith(env.Codec, env.Data, v)
}

// decodeWith decompresses data with the named codec and unmarshals it.
func decodeWith(codecName string, data []byte, v any) error {
	codec, err := compress.New(codecName)
	if err != nil {
		return err
	}
	if data, err = codec.Decode(data); err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (b *BadgerStore) readRecord(txn *badger.Txn, id string) (*record, error) {
	item, err := txn.Get([]byte(docPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec record
	err = item.Value(func(val []byte) error {
		return decode(val, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (b *BadgerStore) writeRecord(txn *badger.Txn, doc *document.Document, rev Revision) error {
	for _, token := range doc.Links.Tokens() {
		item, err := txn.Get([]byte(tokenPrefix + token))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if err := txn.Set([]byte(tokenPrefix+token), []byte(doc.ID)); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			owner, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(owner) != doc.ID {
				return errs.Conflictf("share token already belongs to another document")
			}
		}
	}

	val, err := b.encode(&record{Revision: rev, Document: doc})
	if err != nil {
		return err
	}
	return txn.Set([]byte(docPrefix+doc.ID), val)
}

func (b *BadgerStore) CreateDocument(ctx context.Context, doc *document.Document) (Revision, error) {
	err := b.update(func(txn *badger.Txn) error {
		rec, err := b.readRecord(txn, doc.ID)
		if err != nil {
			return err
		}
		if rec != nil {
			return errs.Conflictf("document %s already exists", doc.ID)
		}
		return b.writeRecord(txn, doc, 1)
	})
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (b *BadgerStore) GetDocument(ctx context.Context, id string) (*document.Document, Revision, error) {
	var rec *record
	err := b.view(func(txn *badger.Txn) error {
		var err error
		rec, err = b.readRecord(txn, id)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	if rec == nil {
		return nil, 0, errs.NotFoundf("document %s", id)
	}
	return rec.Document, rec.Revision, nil
}

func (b *BadgerStore) UpdateDocument(ctx context.Context, doc *document.Document, expected Revision) (Revision, error) {
	next := expected + 1
	err := b.update(func(txn *badger.Txn) error {
		rec, err := b.readRecord(txn, doc.ID)
		if err != nil {
			return err
		}
		if rec == nil || rec.Revision != expected {
			var stored Revision
			if rec != nil {
				stored = rec.Revision
			}
			return missOrConflict(rec != nil, doc.ID, stored, expected)
		}
		if rec.Document.CurrentVersion() > doc.CurrentVersion() {
			return errs.Inconsistent("document %s would lose versions %d..%d", doc.ID, doc.CurrentVersion()+1, rec.Document.CurrentVersion())
		}
		return b.writeRecord(txn, doc, next)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (b *BadgerStore) DeleteDocument(ctx context.Context, id string, expected Revision) error {
	return b.update(func(txn *badger.Txn) error {
		rec, err := b.readRecord(txn, id)
		if err != nil {
			return err
		}
		if rec == nil || rec.Revision != expected {
			var stored Revision
			if rec != nil {
				stored = rec.Revision
			}
			return missOrConflict(rec != nil, id, stored, expected)
		}
		for _, token := range rec.Document.Links.Tokens() {
			if err := txn.Delete([]byte(tokenPrefix + token)); err != nil {
				return err
			}
		}
		return txn.Delete([]byte(docPrefix + id))
	})
}

func (b *BadgerStore) GetDocumentByShareToken(ctx context.Context, token string) (*document.Document, Revision, error) {
	var rec *record
	err := b.view(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(tokenPrefix + token))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errs.NotFoundf("share link")
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		rec, err = b.readRecord(txn, string(id))
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	if rec == nil {
		return nil, 0, errs.NotFoundf("share link")
	}
	return rec.Document, rec.Revision, nil
}

func (b *BadgerStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]*document.Document, error) {
	var docs []*document.Document
	err := b.view(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(docPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec record
			if err := it.Item().Value(func(val []byte) error { return decode(val, &rec) }); err != nil {
				return err
			}
			if matchDocument(rec.Document, filter) {
				docs = append(docs, rec.Document)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortDocuments(docs, filter.Limit), nil
}

func auditKey(seq int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", auditPrefix, seq))
}

// nextSeq bumps the audit counter inside txn. Concurrent appenders touch the
// same key, so badger commits them one after the other and seq values become
// visible in order.
func nextSeq(txn *badger.Txn) (int64, error) {
	var last int64
	item, err := txn.Get([]byte(auditSeqKey))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, err
	default:
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		if last, err = strconv.ParseInt(string(raw), 10, 64); err != nil {
			return 0, errs.Inconsistent("audit counter %q: %v", raw, err)
		}
	}

	next := last + 1
	if err := txn.Set([]byte(auditSeqKey), []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

func (b *BadgerStore) AppendAudit(ctx context.Context, entry *audit.Entry) error {
	return b.update(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn)
		if err != nil {
			return err
		}

		stored := *entry
		stored.Seq = seq
		val, err := json.Marshal(&stored)
		if err != nil {
			return err
		}
		if err := txn.Set(auditKey(seq), val); err != nil {
			return err
		}
		if err := txn.Set([]byte(auditIDPrefix+entry.ID.String()), []byte(strconv.FormatInt(seq, 10))); err != nil {
			return err
		}
		entry.Seq = seq
		return nil
	})
}

func (b *BadgerStore) ListAudit(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	var entries []*audit.Entry
	err := b.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = !filter.Ascending
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(auditPrefix)
		start := prefix
		if opts.Reverse {
			start = append([]byte(auditPrefix), 0xFF)
		}
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			var e audit.Entry
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			if !filter.Match(&e) {
				continue
			}
			entries = append(entries, &e)
			if filter.Limit > 0 && len(entries) >= filter.Limit {
				break
			}
		}
		return nil
	})
	return entries, err
}

func (b *BadgerStore) GetAudit(ctx context.Context, id uuid.UUID) (*audit.Entry, error) {
	var e *audit.Entry
	err := b.view(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(auditIDPrefix + id.String()))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errs.NotFoundf("audit entry %s", id)
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		seq, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return err
		}

		item, err = txn.Get(auditKey(seq))
		if err != nil {
			return err
		}
		e = &audit.Entry{}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, e) })
	})
	return e, err
}

func (b *BadgerStore) CountAudit(ctx context.Context) (int64, error) {
	var count int64
	err := b.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(auditPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (b *BadgerStore) Migrate() error {
	return nil
}

func (b *BadgerStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	if b.txn != nil {
		return f(b)
	}
	return badgerErr(b.retry(func(txn *badger.Txn) error {
		return f(&BadgerStore{db: b.db, compress: b.compress, txn: txn})
	}))
}
