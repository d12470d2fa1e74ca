// Package transport moves transaction notifications between parties. Each
// committed bundle is announced on the bus so counterparties can pull the
// outputs from their ledger view and advance their side of the workflow.
package transport

import (
	"context"

	id "conveyance/pkg/domain"
)

// Message announces a committed transaction.
type Message struct {
	Procedure string     `json:"procedure"`
	TxID      id.TxID    `json:"tx_id"`
	Sender    id.PartyID `json:"sender"`
}

// Handler consumes bus messages. A handler error is logged by the bus and
// the message is not redelivered.
type Handler func(ctx context.Context, msg Message)

// Bus publishes and delivers transaction announcements.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(handler Handler)
	Close() error
}
