package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ecorelease/core/events"
	"ecorelease/crypto"
	"ecorelease/native/ecorelease"
	"ecorelease/observability"
	telemetry "ecorelease/observability/otel"
	"ecorelease/storage"
)

var (
	ErrAlreadyInitialized = errors.New("host: contract already initialized")
	ErrHeightRegressed    = errors.New("host: height lower than last committed height")
	ErrInvalidHeight      = errors.New("host: height must not be negative")
	ErrInvalidSigner      = errors.New("host: invalid signer")
)

const (
	OpInstantiate = "instantiate"
	OpQuery       = "query"
)

var (
	hostNamespace = []byte("host")
	heightKey     = []byte("height")
)

// Invocation is a single inbound message together with the context the host
// vouches for: the authenticated signer and the current height.
type Invocation struct {
	Signer string
	Height int64
	Msg    []byte
}

// Result describes a committed invocation.
type Result struct {
	Receipt  string               `json:"receipt"`
	Height   int64                `json:"height"`
	Action   string               `json:"action"`
	Response *ecorelease.Response `json:"response"`
}

// Host runs contract invocations one at a time against a database. Writes
// made by an invocation are buffered and committed in one batch only when the
// contract returns without error.
type Host struct {
	mu sync.RWMutex
	// pubMu is taken before mu is released so events leave in commit order.
	pubMu   sync.Mutex
	db      storage.Database
	codec   *crypto.Codec
	engine  *ecorelease.Engine
	emitter events.Emitter
	logger  *slog.Logger
	metrics *observability.ContractMetrics
	tracer  trace.Tracer
}

// Option customises a Host.
type Option func(*Host)

// WithEmitter publishes committed events to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(h *Host) {
		if emitter != nil {
			h.emitter = emitter
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics records invocation metrics.
func WithMetrics(metrics *observability.ContractMetrics) Option {
	return func(h *Host) { h.metrics = metrics }
}

// NewHost wires a host around db using codec for addresses.
func NewHost(db storage.Database, codec *crypto.Codec, opts ...Option) *Host {
	h := &Host{
		db:      db,
		codec:   codec,
		engine:  ecorelease.NewEngine(codec),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		tracer:  telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Codec exposes the address codec used by the host.
func (h *Host) Codec() *crypto.Codec { return h.codec }

// Height returns the last committed height, zero before the first commit.
func (h *Host) Height() (int64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastHeight()
}

func (h *Host) lastHeight() (int64, error) {
	raw, err := storage.NewReadOnlyPrefixStore(h.db, hostNamespace).Get(heightKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("host: corrupted height record (%d bytes)", len(raw))
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

// Instantiate creates the contract. It fails if the contract already exists.
func (h *Host) Instantiate(ctx context.Context, inv Invocation) (*Result, error) {
	return h.run(ctx, OpInstantiate, inv, func(store storage.KVStore, env ecorelease.Env) (*ecorelease.Response, error) {
		exists, err := store.Has(ecorelease.ConfigKey)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrAlreadyInitialized
		}
		msg, err := ecorelease.DecodeInitMsg(inv.Msg)
		if err != nil {
			return nil, err
		}
		return h.engine.Init(store, env, msg)
	})
}

// Execute runs a handle message.
func (h *Host) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	msg, err := ecorelease.DecodeHandleMsg(inv.Msg)
	if err != nil {
		h.metrics.Observe("decode", ecorelease.KindOf(err).String(), 0)
		return nil, err
	}
	return h.run(ctx, ecorelease.HandleTag(msg), inv, func(store storage.KVStore, env ecorelease.Env) (*ecorelease.Response, error) {
		return h.engine.Handle(store, env, msg)
	})
}

// Query answers a read-only request. Queries never touch the height.
func (h *Host) Query(ctx context.Context, raw []byte) ([]byte, error) {
	_, span := h.tracer.Start(ctx, "ecorelease.query")
	defer span.End()
	start := time.Now()

	msg, err := ecorelease.DecodeQueryMsg(raw)
	if err == nil {
		span.SetAttributes(attribute.String("ecorelease.query", ecorelease.QueryTag(msg)))
		h.mu.RLock()
		var out []byte
		out, err = h.engine.Query(h.db, msg)
		h.mu.RUnlock()
		if err == nil {
			h.metrics.Observe(OpQuery, "", time.Since(start))
			return out, nil
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	h.metrics.Observe(OpQuery, errorKind(err), time.Since(start))
	return nil, err
}

// View returns the human-readable contract state.
func (h *Host) View(ctx context.Context) (*ecorelease.StateView, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine.View(h.db)
}

type invokeFunc func(store storage.KVStore, env ecorelease.Env) (*ecorelease.Response, error)

func (h *Host) run(ctx context.Context, op string, inv Invocation, fn invokeFunc) (*Result, error) {
	_, span := h.tracer.Start(ctx, "ecorelease."+op, trace.WithAttributes(
		attribute.String("ecorelease.op", op),
		attribute.Int64("ecorelease.height", inv.Height),
	))
	defer span.End()
	start := time.Now()

	res, err := h.commit(op, inv, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.metrics.Observe(op, errorKind(err), time.Since(start))
		h.logger.Warn("contract invocation rejected",
			slog.String("op", op),
			slog.Int64("height", inv.Height),
			slog.String("signer", inv.Signer),
			slog.String("kind", errorKind(err)),
			slog.String("error", err.Error()))
		return nil, err
	}
	span.SetAttributes(attribute.String("ecorelease.receipt", res.Receipt))
	h.metrics.Observe(op, "", time.Since(start))
	h.logger.Info("contract invocation committed",
		slog.String("op", op),
		slog.Int64("height", res.Height),
		slog.String("receipt", res.Receipt),
		slog.String("action", res.Action))
	return res, nil
}

func (h *Host) commit(op string, inv Invocation, fn invokeFunc) (*Result, error) {
	if inv.Height < 0 {
		return nil, ErrInvalidHeight
	}
	signer, err := h.codec.Canonicalize(inv.Signer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSigner, err)
	}

	h.mu.Lock()
	res, state, err := h.apply(op, inv, signer, fn)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	h.pubMu.Lock()
	h.mu.Unlock()
	defer h.pubMu.Unlock()

	h.publish(op, inv, res, state)
	return res, nil
}

// apply runs fn on a cache over the database and writes it back. Callers hold mu.
func (h *Host) apply(op string, inv Invocation, signer []byte, fn invokeFunc) (*Result, *ecorelease.State, error) {
	last, err := h.lastHeight()
	if err != nil {
		return nil, nil, err
	}
	if inv.Height < last {
		return nil, nil, fmt.Errorf("%w: %d < %d", ErrHeightRegressed, inv.Height, last)
	}

	cache := storage.NewCacheStore(h.db)
	resp, err := fn(cache, ecorelease.Env{Height: inv.Height, Signer: signer})
	if err != nil {
		cache.Discard()
		return nil, nil, err
	}
	height := binary.BigEndian.AppendUint64(nil, uint64(inv.Height))
	if err := storage.NewPrefixStore(cache, hostNamespace).Put(heightKey, height); err != nil {
		cache.Discard()
		return nil, nil, err
	}
	if err := cache.Write(); err != nil {
		return nil, nil, fmt.Errorf("host: commit: %w", err)
	}

	action := resp.Action()
	if op == OpInstantiate {
		action = OpInstantiate
	}
	res := &Result{
		Receipt:  ReceiptHash(inv.Height, inv.Signer, inv.Msg),
		Height:   inv.Height,
		Action:   action,
		Response: resp,
	}
	// Supply metrics are best effort; a missing state only skips them.
	state, _ := ecorelease.LoadState(h.db)
	return res, state, nil
}

// publish runs after commit and outside mu, so subscribers never observe
// rolled-back work and slow emitters do not block readers.
func (h *Host) publish(op string, inv Invocation, res *Result, state *ecorelease.State) {
	h.metrics.SetHeight(res.Height)
	if state != nil {
		h.metrics.SetSupply(state.ReleasedTokens, state.TotalTokens)
	}
	evtType := events.TypeForAction(res.Action)
	if op == OpInstantiate {
		evtType = events.TypeInstantiated
	}
	attrs := make([]events.Attribute, 0, len(res.Response.Log))
	for _, a := range res.Response.Log {
		attrs = append(attrs, events.Attribute{Key: a.Key, Value: a.Value})
	}
	h.emitter.Emit(events.ContractEvent{
		Type:       evtType,
		Height:     res.Height,
		Receipt:    res.Receipt,
		Signer:     inv.Signer,
		Attributes: attrs,
	})
}

func errorKind(err error) string {
	if err == nil {
		return ""
	}
	if kind := ecorelease.KindOf(err); kind != ecorelease.KindUnknown {
		return kind.String()
	}
	switch {
	case errors.Is(err, ErrAlreadyInitialized), errors.Is(err, ecorelease.ErrNotInitialized):
		return "lifecycle"
	case errors.Is(err, ErrHeightRegressed), errors.Is(err, ErrInvalidHeight), errors.Is(err, ErrInvalidSigner):
		return "host"
	default:
		return "internal"
	}
}

// ErrorKind classifies err for transports: one of validation, authorization,
// business_state, lifecycle, host or internal.
func ErrorKind(err error) string { return errorKind(err) }
