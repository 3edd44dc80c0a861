package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/emrgen/docflow/internal/compress"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/store"
	redis "github.com/redis/go-redis/v9"
)

const documentTTL = time.Hour

// deletedRevision fences a deleted document off from late fills.
const deletedRevision = store.Revision(math.MaxInt64)

func documentKey(id string) string {
	return "document:" + id
}

// revisionKey holds the highest revision ever cached for a document. It
// outlives the snapshot so an invalidated document still refuses older fills.
func revisionKey(id string) string {
	return "document:" + id + ":rev"
}

// setIfNewer writes the snapshot only when no newer revision was cached.
var setIfNewer = redis.NewScript(`
local cached = tonumber(redis.call("GET", KEYS[2]) or "0")
local rev = tonumber(ARGV[1])
if cached >= rev then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[3])
return 1
`)

// tombstone drops the snapshot and pins the revision fence.
var tombstone = redis.NewScript(`
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
return 1
`)

type cachedDocument struct {
	Revision store.Revision     `json:"revision"`
	Document *document.Document `json:"document"`
}

var _ DocumentCache = (*RedisDocumentCache)(nil)

type RedisDocumentCache struct {
	client  *redis.Client
	encoder compress.Compress
}

func NewRedisDocumentCache(client *redis.Client, encoder compress.Compress) *RedisDocumentCache {
	return &RedisDocumentCache{client: client, encoder: encoder}
}

func (r *RedisDocumentCache) GetDocument(ctx context.Context, id string) (*document.Document, store.Revision, error) {
	res := r.client.Get(ctx, documentKey(id))
	if res.Err() != nil {
		if errors.Is(res.Err(), redis.Nil) {
			return nil, 0, nil
		}
		return nil, 0, res.Err()
	}

	buf, err := res.Bytes()
	if err != nil {
		return nil, 0, err
	}

	buf, err = r.encoder.Decode(buf)
	if err != nil {
		return nil, 0, err
	}

	var cached cachedDocument
	if err := json.Unmarshal(buf, &cached); err != nil {
		return nil, 0, err
	}

	return cached.Document, cached.Revision, nil
}

func (r *RedisDocumentCache) SetDocument(ctx context.Context, doc *document.Document, rev store.Revision) error {
	marshal, err := json.Marshal(cachedDocument{Revision: rev, Document: doc})
	if err != nil {
		return err
	}

	marshal, err = r.encoder.Encode(marshal)
	if err != nil {
		return err
	}

	keys := []string{documentKey(doc.ID), revisionKey(doc.ID)}
	return setIfNewer.Run(ctx, r.client, keys, int64(rev), marshal, documentTTL.Milliseconds()).Err()
}

func (r *RedisDocumentCache) DeleteDocument(ctx context.Context, id string) error {
	keys := []string{documentKey(id), revisionKey(id)}
	return tombstone.Run(ctx, r.client, keys, int64(deletedRevision), documentTTL.Milliseconds()).Err()
}
