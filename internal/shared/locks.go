package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrDocumentBusy indicates another lifecycle operation holds the document lease.
var ErrDocumentBusy = errors.New("document is locked by another operation")

// DocumentLockKey builds redis keys for per-document critical sections.
func DocumentLockKey(docID int64) string {
	return fmt.Sprintf("document:%d:lock", docID)
}

// DocumentLease serialises lifecycle operations per document. The engine itself
// provides no mutual exclusion; the lease closes the cancel-vs-payment race at
// the service layer.
type DocumentLease struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDocumentLease constructs a lease manager. TTL bounds how long a crashed
// holder can block a document.
func NewDocumentLease(client *redis.Client, ttl time.Duration) *DocumentLease {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DocumentLease{client: client, ttl: ttl}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Acquire takes the lease or returns ErrDocumentBusy. The returned release
// function is safe to defer and only deletes the key if we still own it.
func (l *DocumentLease) Acquire(ctx context.Context, docID int64) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	token := uuid.NewString()
	key := DocumentLockKey(docID)
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire lease: %w", err)
	}
	if !ok {
		return nil, ErrDocumentBusy
	}
	release := func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}
	return release, nil
}
