package transport

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "conveyance/pkg/domain"
)

func TestMemoryBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewMemoryBus()

	var first, second []Message
	bus.Subscribe(func(_ context.Context, msg Message) { first = append(first, msg) })
	bus.Subscribe(func(_ context.Context, msg Message) { second = append(second, msg) })

	msg := Message{Procedure: "IssueTitle", TxID: id.TxID(uuid.New()), Sender: "HMLR"}
	require.NoError(t, bus.Publish(context.Background(), msg))

	assert.Equal(t, []Message{msg}, first)
	assert.Equal(t, []Message{msg}, second)
}

func TestMemoryBusDropsAfterClose(t *testing.T) {
	bus := NewMemoryBus()

	var got []Message
	bus.Subscribe(func(_ context.Context, msg Message) { got = append(got, msg) })
	require.NoError(t, bus.Close())

	require.NoError(t, bus.Publish(context.Background(), Message{Procedure: "IssueTitle"}))
	assert.Empty(t, got)
}
