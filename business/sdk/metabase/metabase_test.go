package metabase_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/foundation/logger"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *metabase.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return metabase.New(metabase.Config{
		Log:           logger.New(io.Discard, logger.LevelInfo, "TEST", nil),
		BaseURL:       srv.URL,
		AdminEmail:    "admin@example.com",
		AdminPassword: "secret",
		RetryAttempts: 3,
		RetryBase:     time.Millisecond,
	})
}

// sessionHandler answers the login call every authed test needs.
func sessionHandler(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/session", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "test-session"})
	})
}

func Test_RetryOn5xx(t *testing.T) {
	var calls atomic.Int32

	mux := http.NewServeMux()
	sessionHandler(mux)
	mux.HandleFunc("POST /api/collection", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 42})
	})

	c := newTestClient(t, mux)

	id, err := c.CreateCollection(context.Background(), "Sales", "")
	require.NoError(t, err)
	require.Equal(t, 42, id)
	require.Equal(t, int32(3), calls.Load())
}

func Test_NoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32

	mux := http.NewServeMux()
	sessionHandler(mux)
	mux.HandleFunc("POST /api/collection", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	c := newTestClient(t, mux)

	_, err := c.CreateCollection(context.Background(), "Sales", "")
	require.Error(t, err)

	var mbErr *metabase.Error
	require.ErrorAs(t, err, &mbErr)
	require.Equal(t, http.StatusBadRequest, mbErr.Status)
	require.Equal(t, int32(1), calls.Load())
}

func Test_SetupAlreadyProvisioned(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/setup", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	c := newTestClient(t, mux)

	err := c.Setup(context.Background(), "some-token", "Vitrine")
	require.ErrorIs(t, err, metabase.ErrAlreadyProvisioned)
}

func Test_SetupTokenEmptyWhenConfigured(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session/properties", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"setup-token": nil})
	})

	c := newTestClient(t, mux)

	token, err := c.SetupToken(context.Background())
	require.NoError(t, err)
	require.Empty(t, token)
}

func Test_FailFastWhenUnavailable(t *testing.T) {
	var collectionCalls atomic.Int32

	mux := http.NewServeMux()
	sessionHandler(mux)
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("POST /api/collection", func(w http.ResponseWriter, r *http.Request) {
		collectionCalls.Add(1)
	})

	c := newTestClient(t, mux)

	err := c.Health(context.Background())
	require.ErrorIs(t, err, metabase.ErrUnreachable)
	require.False(t, c.Available())

	// Every other call fails fast without touching the wire.
	_, err = c.CreateCollection(context.Background(), "Sales", "")
	require.ErrorIs(t, err, metabase.ErrUnreachable)
	require.Equal(t, int32(0), collectionCalls.Load())
}

func Test_HealthRecovers(t *testing.T) {
	var healthy atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	c := newTestClient(t, mux)

	require.Error(t, c.Health(context.Background()))
	require.False(t, c.Available())

	healthy.Store(true)
	require.NoError(t, c.Health(context.Background()))
	require.True(t, c.Available())
}

func Test_CreateGroupReusesExisting(t *testing.T) {
	mux := http.NewServeMux()
	sessionHandler(mux)
	mux.HandleFunc("POST /api/permissions/group", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("GET /api/permissions/group", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "name": "Administrators"},
			{"id": 7, "name": "Workspace_abc_Members"},
		})
	})

	c := newTestClient(t, mux)

	id, err := c.CreateGroup(context.Background(), "Workspace_abc_Members")
	require.NoError(t, err)
	require.Equal(t, 7, id)
}

func Test_ListCollectionItemsEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	sessionHandler(mux)
	mux.HandleFunc("GET /api/collection/42/items", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": 3, "model": "dashboard", "name": "Revenue"},
				{"id": 9, "model": "card", "name": "A question"},
			},
		})
	})

	c := newTestClient(t, mux)

	items, err := c.ListCollectionItems(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, metabase.Item{ID: 3, Model: "dashboard", Name: "Revenue"}, items[0])
}

func Test_SessionHeaderSent(t *testing.T) {
	mux := http.NewServeMux()
	sessionHandler(mux)

	var gotSession string
	mux.HandleFunc("GET /api/database", func(w http.ResponseWriter, r *http.Request) {
		gotSession = r.Header.Get("X-Metabase-Session")
		json.NewEncoder(w).Encode([]map[string]any{})
	})

	c := newTestClient(t, mux)

	_, err := c.ListDatabases(context.Background())
	require.NoError(t, err)
	require.Equal(t, "test-session", gotSession)
}
