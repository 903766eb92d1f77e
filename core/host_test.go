package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ecorelease/core/events"
	"ecorelease/crypto"
	"ecorelease/native/ecorelease"
	"ecorelease/storage"
)

type hostFixture struct {
	host        *Host
	db          *storage.MemDB
	recorder    *events.Recorder
	owner       string
	oracle      string
	beneficiary string
}

func addr(t *testing.T, codec *crypto.Codec, fill byte) string {
	t.Helper()
	human, err := codec.Humanize(bytes.Repeat([]byte{fill}, crypto.AddressLength))
	require.NoError(t, err)
	return human
}

func newHostFixture(t *testing.T) *hostFixture {
	t.Helper()
	codec := crypto.NewCodec("eco")
	db := storage.NewMemDB()
	rec := &events.Recorder{}
	f := &hostFixture{
		host:        NewHost(db, codec, WithEmitter(rec), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))),
		db:          db,
		recorder:    rec,
		owner:       addr(t, codec, 0x01),
		oracle:      addr(t, codec, 0x02),
		beneficiary: addr(t, codec, 0x03),
	}
	return f
}

func (f *hostFixture) instantiate(t *testing.T, height int64, totalTokens int64) *Result {
	t.Helper()
	msg := fmt.Sprintf(`{"region":"delta","beneficiary":%q,"oracle":%q,"ecostate":5000,"total_tokens":%d,"payout_start_height":1,"payout_end_height":1000}`,
		f.beneficiary, f.oracle, totalTokens)
	res, err := f.host.Instantiate(context.Background(), Invocation{Signer: f.owner, Height: height, Msg: []byte(msg)})
	require.NoError(t, err)
	return res
}

func TestHostInstantiateOnce(t *testing.T) {
	f := newHostFixture(t)
	res := f.instantiate(t, 1, 1000)
	require.Equal(t, OpInstantiate, res.Action)
	require.Equal(t, ReceiptHash(1, f.owner, []byte(fmt.Sprintf(`{"region":"delta","beneficiary":%q,"oracle":%q,"ecostate":5000,"total_tokens":1000,"payout_start_height":1,"payout_end_height":1000}`, f.beneficiary, f.oracle))), res.Receipt)

	_, err := f.host.Instantiate(context.Background(), Invocation{Signer: f.owner, Height: 2, Msg: []byte(`{}`)})
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	height, err := f.host.Height()
	require.NoError(t, err)
	require.Equal(t, int64(1), height)

	evts := f.recorder.Events()
	require.Len(t, evts, 1)
	require.Equal(t, events.TypeInstantiated, evts[0].EventType())
}

func TestHostExecuteCommitsAndEmits(t *testing.T) {
	f := newHostFixture(t)
	f.instantiate(t, 1, 1000)

	res, err := f.host.Execute(context.Background(), Invocation{Signer: f.oracle, Height: 5, Msg: []byte(`{"updateecostate":{"ecostate":5150}}`)})
	require.NoError(t, err)
	require.Equal(t, "update_ecostate", res.Action)
	require.Len(t, res.Response.Log, 5)

	out, err := f.host.Query(context.Background(), []byte(fmt.Sprintf(`{"balance":{"address":%q}}`, f.beneficiary)))
	require.NoError(t, err)
	require.JSONEq(t, `{"balance":"150"}`, string(out))

	evts := f.recorder.Events()
	require.Len(t, evts, 2)
	evt := evts[1].(events.ContractEvent)
	require.Equal(t, "ecorelease.update_ecostate", evt.Type)
	require.Equal(t, "150", evt.Attr("release_tokens"))
	require.Equal(t, res.Receipt, evt.Receipt)
}

func TestHostFailedInvocationLeavesNoTrace(t *testing.T) {
	f := newHostFixture(t)
	f.instantiate(t, 1, 1000)

	snapshot := map[string][]byte{}
	for _, key := range [][]byte{ecorelease.ConfigKey} {
		v, err := f.db.Get(key)
		require.NoError(t, err)
		snapshot[string(key)] = v
	}
	keys := f.db.Len()

	// Unauthorized caller.
	_, err := f.host.Execute(context.Background(), Invocation{Signer: f.owner, Height: 9, Msg: []byte(`{"updateecostate":{"ecostate":9000}}`)})
	require.ErrorIs(t, err, ecorelease.ErrUnauthorized)
	require.Equal(t, "authorization", ErrorKind(err))

	// Lifecycle rejection.
	_, err = f.host.Execute(context.Background(), Invocation{Signer: f.oracle, Height: 2000, Msg: []byte(`{"updateecostate":{"ecostate":9000}}`)})
	require.ErrorIs(t, err, ecorelease.ErrExpired)
	require.Equal(t, "business_state", ErrorKind(err))

	require.Equal(t, keys, f.db.Len())
	v, err := f.db.Get(ecorelease.ConfigKey)
	require.NoError(t, err)
	require.Equal(t, snapshot[string(ecorelease.ConfigKey)], v)

	height, err := f.host.Height()
	require.NoError(t, err)
	require.Equal(t, int64(1), height, "rejected invocations must not advance the height")
	require.Len(t, f.recorder.Events(), 1)
}

func TestHostRejectsRegressedHeightAndBadSigner(t *testing.T) {
	f := newHostFixture(t)
	f.instantiate(t, 10, 1000)

	_, err := f.host.Execute(context.Background(), Invocation{Signer: f.owner, Height: 9, Msg: []byte(`{"lock":{}}`)})
	require.ErrorIs(t, err, ErrHeightRegressed)

	_, err = f.host.Execute(context.Background(), Invocation{Signer: f.owner, Height: -1, Msg: []byte(`{"lock":{}}`)})
	require.ErrorIs(t, err, ErrInvalidHeight)

	_, err = f.host.Execute(context.Background(), Invocation{Signer: "nhb1invalid", Height: 11, Msg: []byte(`{"lock":{}}`)})
	require.ErrorIs(t, err, ErrInvalidSigner)
	require.Equal(t, "host", ErrorKind(err))

	// Same height is allowed: several messages may share one height.
	_, err = f.host.Execute(context.Background(), Invocation{Signer: f.owner, Height: 10, Msg: []byte(`{"lock":{}}`)})
	require.NoError(t, err)
}

func TestHostExecuteBeforeInstantiate(t *testing.T) {
	f := newHostFixture(t)
	_, err := f.host.Execute(context.Background(), Invocation{Signer: f.owner, Height: 1, Msg: []byte(`{"lock":{}}`)})
	require.ErrorIs(t, err, ecorelease.ErrNotInitialized)
	require.Equal(t, "lifecycle", ErrorKind(err))

	_, err = f.host.Execute(context.Background(), Invocation{Signer: f.owner, Height: 1, Msg: []byte(`{"burn":{}}`)})
	require.Equal(t, "validation", ErrorKind(err))
}

func TestHostViewAndStateQuery(t *testing.T) {
	f := newHostFixture(t)
	f.instantiate(t, 1, 1000)

	view, err := f.host.View(context.Background())
	require.NoError(t, err)
	require.Equal(t, f.owner, view.Owner)
	require.Equal(t, "delta", view.Region)

	out, err := f.host.Query(context.Background(), []byte(`{"state":{}}`))
	require.NoError(t, err)
	var state ecorelease.State
	require.NoError(t, json.Unmarshal(out, &state))
	require.Equal(t, int64(1000), state.TotalTokens)
}

func TestReceiptHashIsDeterministic(t *testing.T) {
	a := ReceiptHash(7, "eco1x", []byte(`{"lock":{}}`))
	require.Equal(t, a, ReceiptHash(7, "eco1x", []byte(`{"lock":{}}`)))
	require.NotEqual(t, a, ReceiptHash(8, "eco1x", []byte(`{"lock":{}}`)))
	require.Len(t, a, 66)
}

type blockingEmitter struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingEmitter) Emit(events.Event) {
	b.entered <- struct{}{}
	<-b.release
}

func TestHostReadsProceedWhileEmitterBlocks(t *testing.T) {
	codec := crypto.NewCodec("eco")
	emitter := &blockingEmitter{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f := &hostFixture{
		db:          storage.NewMemDB(),
		owner:       addr(t, codec, 0x01),
		oracle:      addr(t, codec, 0x02),
		beneficiary: addr(t, codec, 0x03),
	}
	f.host = NewHost(f.db, codec, WithEmitter(emitter), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	done := make(chan error, 1)
	go func() {
		msg := fmt.Sprintf(`{"region":"delta","beneficiary":%q,"oracle":%q,"ecostate":5000,"total_tokens":1000}`, f.beneficiary, f.oracle)
		_, err := f.host.Instantiate(context.Background(), Invocation{Signer: f.owner, Height: 1, Msg: []byte(msg)})
		done <- err
	}()

	select {
	case <-emitter.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("emitter was never called")
	}

	type readResult struct {
		height int64
		err    error
	}
	reads := make(chan readResult, 1)
	go func() {
		height, err := f.host.Height()
		if err == nil {
			_, err = f.host.Query(context.Background(), []byte(`{"state":{}}`))
		}
		reads <- readResult{height: height, err: err}
	}()
	select {
	case got := <-reads:
		require.NoError(t, got.err)
		require.Equal(t, int64(1), got.height)
	case <-time.After(5 * time.Second):
		t.Fatal("reads blocked behind the emitter")
	}

	close(emitter.release)
	require.NoError(t, <-done)
}

func TestHostRejectsMissingEcostateWithoutTouchingState(t *testing.T) {
	f := newHostFixture(t)
	f.instantiate(t, 1, 100000)

	_, err := f.host.Execute(context.Background(), Invocation{Signer: f.oracle, Height: 2, Msg: []byte(`{"updateecostate":{}}`)})
	require.Error(t, err)
	require.Equal(t, "validation", ErrorKind(err))

	res, err := f.host.Execute(context.Background(), Invocation{Signer: f.oracle, Height: 3, Msg: []byte(`{"updateecostate":{"ecostate":5000}}`)})
	require.NoError(t, err)
	for _, attr := range res.Response.Log {
		if attr.Key == "release_tokens" {
			require.Equal(t, "0", attr.Value)
		}
	}

	view, err := f.host.View(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), view.ReleasedTokens)
}
