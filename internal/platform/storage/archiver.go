package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/orderdesk/api/internal/services"
)

// ObjectOpener returns a writer for a new object. The GCS implementation
// refuses to overwrite an existing object.
type ObjectOpener func(ctx context.Context, object string) io.WriteCloser

// Archiver writes a JSON snapshot of an order to Cloud Storage before a full
// exchange deletes the original document.
type Archiver struct {
	open   ObjectOpener
	prefix string
	clock  func() time.Time
}

var _ services.OrderArchiver = (*Archiver)(nil)

// ArchiverOption customises the Archiver.
type ArchiverOption func(*Archiver)

func WithArchivePrefix(prefix string) ArchiverOption {
	return func(a *Archiver) { a.prefix = prefix }
}

func WithArchiveClock(clock func() time.Time) ArchiverOption {
	return func(a *Archiver) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithObjectOpener replaces the Cloud Storage writer, mainly for tests.
func WithObjectOpener(open ObjectOpener) ArchiverOption {
	return func(a *Archiver) {
		if open != nil {
			a.open = open
		}
	}
}

func NewArchiver(client *gcs.Client, bucket string, opts ...ArchiverOption) (*Archiver, error) {
	bucket = strings.TrimSpace(bucket)
	if client == nil && bucket != "" {
		return nil, errors.New("storage archiver: client is required")
	}
	a := &Archiver{prefix: defaultArchivePrefix, clock: time.Now}
	if client != nil {
		if bucket == "" {
			return nil, errors.New("storage archiver: bucket is required")
		}
		handle := client.Bucket(bucket)
		a.open = func(ctx context.Context, object string) io.WriteCloser {
			w := handle.Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
			w.ContentType = "application/json"
			return w
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.open == nil {
		return nil, errors.New("storage archiver: no object writer configured")
	}
	return a, nil
}

type archivedOrder struct {
	ArchivedAt time.Time      `json:"archivedAt"`
	Order      services.Order `json:"order"`
}

// ArchiveOrder implements services.OrderArchiver.
func (a *Archiver) ArchiveOrder(ctx context.Context, order services.Order) error {
	now := a.clock().UTC()
	object, err := ArchivePath(a.prefix, order.ID, now)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(archivedOrder{ArchivedAt: now, Order: order})
	if err != nil {
		return fmt.Errorf("storage archiver: marshal %s: %w", order.ID, err)
	}

	w := a.open(ctx, object)
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage archiver: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage archiver: close %s: %w", object, err)
	}
	return nil
}
