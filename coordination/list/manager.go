package list

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination"
	"github.com/LerianStudio/lib-coordination/coordination/keyspace"
	"github.com/LerianStudio/lib-coordination/coordination/log"
	"github.com/LerianStudio/lib-coordination/coordination/opentelemetry"
	"github.com/LerianStudio/lib-coordination/coordination/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNilStore is returned when a Manager is built without a store.
	ErrNilStore = errors.New("list: store is nil")
	// ErrInvalidTTL is returned when the time-to-live is not positive.
	ErrInvalidTTL = errors.New("list: time to live must be greater than 0")
	// ErrEmptyKey is returned when a logical key is blank.
	ErrEmptyKey = errors.New("list: key cannot be empty")
)

// Manager saves and reads lists of T keyed per instance.
type Manager[T any] struct {
	ns     keyspace.Namespace
	store  store.Store
	ttl    time.Duration
	codec  Codec[T]
	logger log.Logger
}

// Option configures a Manager.
type Option[T any] func(*Manager[T])

// WithCodec replaces the JSON codec.
func WithCodec[T any](codec Codec[T]) Option[T] {
	return func(m *Manager[T]) {
		if codec != nil {
			m.codec = codec
		}
	}
}

// WithLogger sets the manager logger. The context logger is used when none is set.
func WithLogger[T any](logger log.Logger) Option[T] {
	return func(m *Manager[T]) { m.logger = logger }
}

// NewManager returns a Manager whose lists expire ttl after each save.
func NewManager[T any](ns keyspace.Namespace, st store.Store, ttl time.Duration, opts ...Option[T]) (*Manager[T], error) {
	if ns.KeyRoot() == "" {
		return nil, keyspace.ErrEmptyKeyRoot
	}

	if st == nil {
		return nil, ErrNilStore
	}

	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}

	m := &Manager[T]{
		ns:    ns,
		store: st,
		ttl:   ttl,
		codec: JSONCodec[T]{},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Namespace returns the namespace lists are keyed under.
func (m *Manager[T]) Namespace() keyspace.Namespace { return m.ns }

func (m *Manager[T]) start(ctx context.Context, op, key string) (context.Context, trace.Span, log.Logger) {
	_, tracer := coordination.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "coordination.list."+op)
	span.SetAttributes(
		attribute.String("list.root", m.ns.KeyRoot()),
		opentelemetry.KeyAttribute("list.key", key),
	)

	return ctx, span, coordination.ResolveLogger(ctx, m.logger)
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	return nil
}

// SaveList stores list as this instance's copy of key, replacing any earlier
// copy and restarting its time-to-live.
func (m *Manager[T]) SaveList(ctx context.Context, key string, list []T) error {
	if err := validKey(key); err != nil {
		return err
	}

	ctx, span, _ := m.start(ctx, "save", key)
	defer span.End()

	data, err := m.codec.Encode(list)
	if err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to encode list", err)
		return fmt.Errorf("save list %s: %w", opentelemetry.SafeKey(key), err)
	}

	if err := m.store.SetWithExpiry(ctx, m.ns.InstanceKey(key), data, m.ttl); err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to save list", err)
		return fmt.Errorf("save list %s: %w", opentelemetry.SafeKey(key), err)
	}

	span.SetAttributes(attribute.Int("list.size", len(list)))

	return nil
}

// FindListForInstance returns this instance's copy of key. An absent or
// expired list yields a nil slice and no error.
func (m *Manager[T]) FindListForInstance(ctx context.Context, key string) ([]T, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}

	ctx, span, _ := m.start(ctx, "find_for_instance", key)
	defer span.End()

	list, found, err := m.read(ctx, m.ns.InstanceKey(key))
	if err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to read list", err)
		return nil, fmt.Errorf("find list %s: %w", opentelemetry.SafeKey(key), err)
	}

	span.SetAttributes(attribute.Bool("list.found", found))

	return list, nil
}

// FindListForAllInstances concatenates the copies of key saved by every
// instance under the root. The order across instances is unspecified; each
// instance's elements keep their order. Duplicates are kept. Copies that
// expire between the scan and the read are skipped.
func (m *Manager[T]) FindListForAllInstances(ctx context.Context, key string) ([]T, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}

	ctx, span, logger := m.start(ctx, "find_for_all_instances", key)
	defer span.End()

	keys, err := m.store.ScanKeys(ctx, m.ns.AllInstancesPattern(key))
	if err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to scan lists", err)
		return nil, fmt.Errorf("find lists %s: %w", opentelemetry.SafeKey(key), err)
	}

	var all []T

	instances := 0

	for _, composite := range keys {
		if !m.isInstanceCopy(composite, key) {
			continue
		}

		list, found, err := m.read(ctx, composite)
		if err != nil {
			opentelemetry.HandleSpanError(&span, "Failed to read list", err)
			return nil, fmt.Errorf("find lists %s: %w", opentelemetry.SafeKey(composite), err)
		}

		if !found {
			logger.Log(ctx, log.LevelDebug, "list vanished between scan and read", log.String("key", opentelemetry.SafeKey(composite)))
			continue
		}

		instances++

		all = append(all, list...)
	}

	span.SetAttributes(attribute.Int("list.instances", instances), attribute.Int("list.size", len(all)))

	return all, nil
}

// isInstanceCopy reports whether composite is root:<instance>:key for a
// single instance segment other than the global one. A glob star also
// matches colons, so root:a:b:key would otherwise pass as a copy of key.
func (m *Manager[T]) isInstanceCopy(composite, key string) bool {
	prefix := m.ns.KeyRoot() + ":"
	suffix := ":" + key

	if len(composite) < len(prefix)+len(suffix) ||
		!strings.HasPrefix(composite, prefix) ||
		!strings.HasSuffix(composite, suffix) {
		return false
	}

	segment := composite[len(prefix) : len(composite)-len(suffix)]

	return segment != "" && segment != keyspace.GlobalSegment && !strings.Contains(segment, ":")
}

// FindAllLists returns every list this instance saved, keyed by the full
// composite store key rather than the logical key.
func (m *Manager[T]) FindAllLists(ctx context.Context) (map[string][]T, error) {
	pattern := m.ns.InstancePattern()

	ctx, span, _ := m.start(ctx, "find_all", pattern)
	defer span.End()

	keys, err := m.store.ScanKeys(ctx, pattern)
	if err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to scan lists", err)
		return nil, fmt.Errorf("find all lists: %w", err)
	}

	lists := make(map[string][]T, len(keys))

	for _, composite := range keys {
		list, found, err := m.read(ctx, composite)
		if err != nil {
			opentelemetry.HandleSpanError(&span, "Failed to read list", err)
			return nil, fmt.Errorf("find all lists %s: %w", opentelemetry.SafeKey(composite), err)
		}

		if found {
			lists[composite] = list
		}
	}

	span.SetAttributes(attribute.Int("list.count", len(lists)))

	return lists, nil
}

// DeleteList removes this instance's copy of key. Deleting an absent list
// is not an error.
func (m *Manager[T]) DeleteList(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}

	ctx, span, _ := m.start(ctx, "delete", key)
	defer span.End()

	if err := m.store.Delete(ctx, m.ns.InstanceKey(key)); err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to delete list", err)
		return fmt.Errorf("delete list %s: %w", opentelemetry.SafeKey(key), err)
	}

	return nil
}

func (m *Manager[T]) read(ctx context.Context, composite string) ([]T, bool, error) {
	data, err := m.store.Get(ctx, composite)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	list, err := m.codec.Decode(data)
	if err != nil {
		return nil, false, err
	}

	return list, true, nil
}
