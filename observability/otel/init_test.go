package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{Traces: true})
	require.Error(t, err)
}

func TestResourceDescribesNode(t *testing.T) {
	res, err := Resource(Config{
		ServiceName:   "ecod",
		Environment:   "test",
		AddressPrefix: "eco",
		DBBackend:     "bolt",
	})
	require.NoError(t, err)

	set := res.Set()
	for key, want := range map[attribute.Key]string{
		semconv.ServiceNameKey:           "ecod",
		semconv.DeploymentEnvironmentKey: "test",
		AddressPrefixKey:                 "eco",
		DBBackendKey:                     "bolt",
		IndexerKey:                       "disabled",
	} {
		v, ok := set.Value(key)
		require.True(t, ok, string(key))
		require.Equal(t, want, v.AsString(), string(key))
	}
}

func TestShutdownAllReversesAndJoins(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	err := shutdownAll(context.Background(), []ShutdownFunc{
		func(context.Context) error { order = append(order, "traces"); return nil },
		func(context.Context) error { order = append(order, "metrics"); return boom },
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"metrics", "traces"}, order)
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =x,tenant=eco")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "eco"}, headers)
}
