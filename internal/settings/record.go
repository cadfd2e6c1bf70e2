package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"guardian/internal/apperr"
)

// Persister is the durable per-key storage behind every record.
type Persister interface {
	LoadSetting(ctx context.Context, key string) (string, bool, error)
	SaveSetting(ctx context.Context, key, value string) error
}

// Entry is the untyped view of a record used by transport code.
type Entry interface {
	Key() string
	MarshalValue() ([]byte, error)
	CommitJSON(ctx context.Context, body []byte) error
}

// Record holds the committed copy of one configuration record. Commit is the
// only way to change it.
type Record[T any] struct {
	key       string
	def       T
	validate  func(T) error
	normalize func(T) T
	clone     func(T) T
	store     Persister
	log       *slog.Logger

	commitMu sync.Mutex

	mu     sync.RWMutex
	value  T
	subs   map[int]func(T)
	nextID int
}

type option[T any] func(*Record[T])

func withValidate[T any](fn func(T) error) option[T] {
	return func(r *Record[T]) { r.validate = fn }
}

func withNormalize[T any](fn func(T) T) option[T] {
	return func(r *Record[T]) { r.normalize = fn }
}

func withClone[T any](fn func(T) T) option[T] {
	return func(r *Record[T]) { r.clone = fn }
}

func newRecord[T any](key string, def T, store Persister, logger *slog.Logger, opts ...option[T]) *Record[T] {
	r := &Record[T]{key: key, def: def, store: store, log: logger, subs: map[int]func(T){}}
	for _, o := range opts {
		o(r)
	}
	r.value = r.copy(def)
	return r
}

func (r *Record[T]) copy(v T) T {
	if r.clone == nil {
		return v
	}
	return r.clone(v)
}

// load reads the stored value once. Stored JSON is decoded on top of the
// default; anything that fails to decode or validate falls back to the
// default and is left in storage until the next commit.
func (r *Record[T]) load(ctx context.Context) error {
	raw, ok, err := r.store.LoadSetting(ctx, r.key)
	if err != nil {
		return fmt.Errorf("load setting %s: %w", r.key, err)
	}
	if !ok {
		return nil
	}
	v := r.copy(r.def)
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		r.log.Warn("stored setting does not match current shape, using default", "key", r.key, "err", err)
		return nil
	}
	if r.validate != nil {
		if err := r.validate(v); err != nil {
			r.log.Warn("stored setting is invalid, using default", "key", r.key, "err", err)
			return nil
		}
	}
	r.mu.Lock()
	r.value = v
	r.mu.Unlock()
	return nil
}

func (r *Record[T]) Key() string { return r.key }

func (r *Record[T]) Default() T { return r.copy(r.def) }

// Value returns a copy of the committed value.
func (r *Record[T]) Value() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copy(r.value)
}

// Commit replaces the whole record. The committed copy only changes after the
// new value has been persisted.
func (r *Record[T]) Commit(ctx context.Context, v T) error {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	if r.normalize != nil {
		v = r.normalize(r.copy(v))
	}
	if r.validate != nil {
		if err := r.validate(v); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", r.key, err)
	}
	if err := r.store.SaveSetting(ctx, r.key, string(b)); err != nil {
		return fmt.Errorf("persist setting %s: %w", r.key, err)
	}

	v = r.copy(v)
	r.mu.Lock()
	r.value = v
	subs := make([]func(T), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(r.copy(v))
	}
	r.log.Info("setting committed", "key", r.key)
	return nil
}

// Subscribe registers fn to run after every successful commit.
func (r *Record[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
}

func (r *Record[T]) MarshalValue() ([]byte, error) {
	return json.Marshal(r.Value())
}

// CommitJSON decodes body on top of the default value and commits it.
func (r *Record[T]) CommitJSON(ctx context.Context, body []byte) error {
	v := r.copy(r.def)
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return apperr.Invalid("The submitted settings could not be read.", err.Error())
	}
	return r.Commit(ctx, v)
}

// Draft starts a local edit of the record.
func (r *Record[T]) Draft() *Draft[T] {
	return &Draft[T]{rec: r, Value: r.Value()}
}

// Draft is an editable copy. Dropping it discards the edit.
type Draft[T any] struct {
	rec   *Record[T]
	Value T
}

func (d *Draft[T]) Dirty() bool {
	return !reflect.DeepEqual(d.Value, d.rec.Value())
}

// Reset throws away local edits and re-reads the committed value.
func (d *Draft[T]) Reset() {
	d.Value = d.rec.Value()
}

func (d *Draft[T]) Save(ctx context.Context) error {
	return d.rec.Commit(ctx, d.Value)
}
