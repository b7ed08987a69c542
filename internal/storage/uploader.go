package storage

import (
	"context"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/goliatone/go-contentpack/internal/logging"
	"github.com/goliatone/go-contentpack/pkg/interfaces"
)

// Status is the result category of one object upload.
type Status string

const (
	StatusUploaded Status = "uploaded"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// SkipReason explains a skipped upload.
type SkipReason string

const AlreadyPresent SkipReason = "already_present"

// Object is bytes waiting to be written to the backend its pointer names.
type Object struct {
	Pointer Pointer
	Body    []byte
}

// Outcome records what happened to one object.
type Outcome struct {
	Pointer Pointer
	Status  Status
	Reason  SkipReason
	Err     error
}

// Uploader writes objects through their backends, skipping those already
// present. A per-run cache remembers objects known to be present so content
// shared by several documents is checked once, and concurrent requests for
// the same object wait on a single transfer.
type Uploader struct {
	backends Backends
	force    bool
	verify   bool
	logger   interfaces.Logger

	present  *cache.Cache
	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	done chan struct{}
	err  error
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithForce makes every object bypass the backend existence check. Objects
// already written during the same run are still not written twice.
func WithForce(force bool) UploaderOption {
	return func(u *Uploader) { u.force = force }
}

// WithVerify reads present or freshly written objects back and compares
// their hash, failing with an IntegrityError on mismatch.
func WithVerify(verify bool) UploaderOption {
	return func(u *Uploader) { u.verify = verify }
}

// WithUploaderLogger sets the logger.
func WithUploaderLogger(logger interfaces.Logger) UploaderOption {
	return func(u *Uploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}

func NewUploader(backends Backends, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		backends: backends,
		logger:   logging.NoOp(),
		present:  cache.New(cache.NoExpiration, 0),
		inflight: map[string]*flight{},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload writes obj unless it is already present. Failures are returned in
// the outcome and never recorded as present.
func (u *Uploader) Upload(ctx context.Context, obj Object) Outcome {
	key := cacheKey(obj.Pointer)
	for {
		u.mu.Lock()
		if _, ok := u.present.Get(key); ok {
			u.mu.Unlock()
			return skipped(obj.Pointer)
		}
		if f, ok := u.inflight[key]; ok {
			u.mu.Unlock()
			select {
			case <-ctx.Done():
				return failed(obj.Pointer, "wait", ctx.Err())
			case <-f.done:
			}
			if f.err == nil {
				return skipped(obj.Pointer)
			}
			continue
		}
		f := &flight{done: make(chan struct{})}
		u.inflight[key] = f
		u.mu.Unlock()

		outcome := u.transfer(ctx, obj)

		u.mu.Lock()
		delete(u.inflight, key)
		if outcome.Status != StatusFailed {
			u.present.Set(key, outcome.Pointer, cache.NoExpiration)
		}
		f.err = outcome.Err
		close(f.done)
		u.mu.Unlock()
		return outcome
	}
}

func (u *Uploader) transfer(ctx context.Context, obj Object) Outcome {
	p := obj.Pointer
	backend, err := u.backends.For(p)
	if err != nil {
		return failed(p, "resolve", err)
	}

	if !u.force {
		exists, err := backend.Exists(ctx, p)
		if err != nil {
			return failed(p, "exists", err)
		}
		if exists {
			if err := u.check(ctx, backend, p); err != nil {
				return Outcome{Pointer: p, Status: StatusFailed, Err: err}
			}
			logging.Scoped(u.logger, ctx).Debug("storage.object.present", "pointer", p.URI(), "hash", p.Hash)
			return skipped(p)
		}
	}

	written, err := backend.Put(ctx, obj.Body, p)
	if err != nil {
		return failed(p, "put", err)
	}
	if err := u.check(ctx, backend, written); err != nil {
		return Outcome{Pointer: written, Status: StatusFailed, Err: err}
	}
	logging.Scoped(u.logger, ctx).Debug("storage.object.uploaded", "pointer", written.URI(), "hash", written.Hash, "size", written.Size)
	return Outcome{Pointer: written, Status: StatusUploaded}
}

func (u *Uploader) check(ctx context.Context, backend Backend, p Pointer) error {
	if !u.verify {
		return nil
	}
	reader, ok := backend.(Reader)
	if !ok {
		return nil
	}
	body, err := reader.Read(ctx, p)
	if err != nil {
		return &StorageError{Op: "read", Pointer: p.URI(), Err: err}
	}
	if got := Hash(body); got != p.Hash {
		return &IntegrityError{Pointer: p.URI(), Want: p.Hash, Got: got}
	}
	return nil
}

func cacheKey(p Pointer) string {
	return string(p.Scheme) + "://" + p.Location + "/" + p.Key + "#" + p.Hash
}

func skipped(p Pointer) Outcome {
	return Outcome{Pointer: p, Status: StatusSkipped, Reason: AlreadyPresent}
}

func failed(p Pointer, op string, err error) Outcome {
	return Outcome{Pointer: p, Status: StatusFailed, Err: &StorageError{Op: op, Pointer: p.URI(), Err: err}}
}
