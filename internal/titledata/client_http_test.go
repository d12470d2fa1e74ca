package titledata

//go:generate mockgen -source=titledata.go -destination=mocks/mocks.go -package=mocks Client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyance/internal/record"
	id "conveyance/pkg/domain"
	"conveyance/pkg/platform/sentinel"
)

func TestHTTPClientGet(t *testing.T) {
	want := Data{
		TitleNumber: "ZQV888860",
		Owner:       record.CustomerDetails{Identity: 55, Name: "Dora Deed"},
		Guarantee:   record.GuaranteeFull,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/titles/ZQV888860":
			_ = json.NewEncoder(w).Encode(want)
		case "/v1/titles/XXX1":
			w.WriteHeader(http.StatusNotFound)
		case "/v1/titles/ZZZ3":
			_, _ = w.Write([]byte("{not json"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		got, err := client.Get(ctx, "ZQV888860")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := client.Get(ctx, "XXX1")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("server error reads as unavailable", func(t *testing.T) {
		_, err := client.Get(ctx, "YYY2")
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("malformed body reads as unavailable", func(t *testing.T) {
		_, err := client.Get(ctx, "ZZZ3")
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
	})
}

func TestHTTPClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := NewHTTPClient(srv.URL)
	_, err := client.Get(context.Background(), "ZQV888860")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
}

func TestMemorySource(t *testing.T) {
	source := NewMemorySource()
	ctx := context.Background()

	_, err := source.Get(ctx, "ZQV888860")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	source.Put(Data{TitleNumber: "ZQV888860", OwnerLender: id.PartyID("LenderCo")})
	got, err := source.Get(ctx, "ZQV888860")
	require.NoError(t, err)
	assert.Equal(t, id.PartyID("LenderCo"), got.OwnerLender)

	source.SetUnavailable(true)
	_, err = source.Get(ctx, "ZQV888860")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
}
