//go:build integration

package transport_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyance/internal/transport"
	id "conveyance/pkg/domain"
	"conveyance/pkg/testutil/containers"
)

func TestKafkaBusFanOut(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx := context.Background()
	brokers := []string{rp.Broker}

	// Two parties, each in its own consumer group, both see the message.
	issuerBus, err := transport.NewKafkaBus(ctx, brokers, "conveyance-hmlr", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = issuerBus.Close() })

	conveyancerBus, err := transport.NewKafkaBus(ctx, brokers, "conveyance-conveyitall", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conveyancerBus.Close() })

	var mu sync.Mutex
	received := make(map[string][]transport.Message)
	collect := func(name string, bus *transport.KafkaBus) {
		bus.Subscribe(func(_ context.Context, msg transport.Message) {
			mu.Lock()
			received[name] = append(received[name], msg)
			mu.Unlock()
		})
	}
	collect("issuer", issuerBus)
	collect("conveyancer", conveyancerBus)

	msg := transport.Message{
		Procedure: "IssueTitle",
		TxID:      id.TxID(uuid.New()),
		Sender:    "HMLR",
	}
	require.NoError(t, issuerBus.Publish(ctx, msg))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received["issuer"]) == 1 && len(received["conveyancer"]) == 1
	}, 30*time.Second, 100*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, msg, received["issuer"][0])
	assert.Equal(t, msg, received["conveyancer"][0])
}
