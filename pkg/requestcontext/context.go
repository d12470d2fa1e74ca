// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services and stores read them
// without importing net/http.
package requestcontext

import (
	"context"
	"time"

	id "conveyance/pkg/domain"
)

type (
	partyIDKey     struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithParty records the authenticated calling party.
func WithParty(ctx context.Context, party id.PartyID) context.Context {
	return context.WithValue(ctx, partyIDKey{}, party)
}

// Party returns the calling party, or the zero value when unauthenticated.
func Party(ctx context.Context) id.PartyID {
	if v, ok := ctx.Value(partyIDKey{}).(id.PartyID); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithTime pins the request time; tests use it to make clock-dependent
// behavior deterministic.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time, falling back to wall clock.
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return v
	}
	return time.Now()
}
