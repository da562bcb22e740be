package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-reassignment/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/api/move-mode/", Tokens: StaticToken("tok-123")})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestUnassignSendsRequestAndToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/move-mode/unassign", r.URL.Path)
		assert.Equal(t, "tok-123", r.Header.Get(DefaultCSRFHeader))

		var req MoveRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, MoveRequest{ReservationID: 10, FurnitureIDs: []uint64{1, 2}, Date: "2025-06-01"}, req)

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "unassigned_count": 1, "furniture_ids": []uint64{2}})
	})

	res, err := c.Unassign(context.Background(), MoveRequest{ReservationID: 10, FurnitureIDs: []uint64{1, 2}, Date: "2025-06-01"})
	require.NoError(t, err)
	require.Equal(t, 1, res.UnassignedCount)
	require.Equal(t, []uint64{2}, res.FurnitureIDs)
}

func TestAssignRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Mobiliario no disponible"})
	})

	_, err := c.Assign(context.Background(), MoveRequest{ReservationID: 10, FurnitureIDs: []uint64{9}, Date: "2025-06-01"})
	require.Error(t, err)
	require.True(t, IsRejection(err))
	require.False(t, IsTransport(err))
	require.Equal(t, "Mobiliario no disponible", RejectionMessage(err))
}

func TestAssignServerErrorIsTransport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "kaput", http.StatusBadGateway)
	})

	_, err := c.Assign(context.Background(), MoveRequest{ReservationID: 10, FurnitureIDs: []uint64{9}, Date: "2025-06-01"})
	require.True(t, IsTransport(err))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, http.StatusBadGateway, te.Status)
}

func TestMalformedBodyIsTransport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>login</html>"))
	})
	_, err := c.Unassign(context.Background(), MoveRequest{ReservationID: 1, FurnitureIDs: []uint64{1}, Date: "2025-06-01"})
	require.True(t, IsTransport(err))
}

func TestUnreachableBackendIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: url, HTTPClient: &http.Client{Timeout: time.Second}})
	require.NoError(t, err)
	_, err = c.PoolData(context.Background(), 1, "2025-06-01")
	require.True(t, IsTransport(err))
}

func TestPoolDataDecodesSnapshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/move-mode/pool-data", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("reservation_id"))
		assert.Equal(t, "2025-06-01", r.URL.Query().Get("date"))
		assert.Empty(t, r.Header.Get(DefaultCSRFHeader))
		writeJSON(w, http.StatusOK, map[string]any{
			"original_furniture": []map[string]any{{"id": 1, "capacity": 2}, {"id": 2}},
			"num_people":         3,
			"preferences":        "sombra, primera_linea",
			"customer_name":      "Ana",
			"room_number":        "204",
		})
	})

	snap, err := c.PoolData(context.Background(), 10, "2025-06-01")
	require.NoError(t, err)
	require.Equal(t, uint64(10), snap.ReservationID)
	require.Equal(t, []model.Furniture{{ID: 1, Capacity: 2}, {ID: 2}}, snap.Furniture)
	require.Equal(t, 3, snap.NumPeople)
	require.Equal(t, []string{"sombra", "primera_linea"}, snap.Preferences)
	require.Equal(t, "Ana", snap.Display["customer_name"])
	require.Equal(t, "204", snap.Display["room_number"])
	require.NotContains(t, snap.Display, "num_people")
}

func TestPoolDataErrorPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Reserva no encontrada"})
	})
	_, err := c.PoolData(context.Background(), 10, "2025-06-01")
	require.True(t, IsRejection(err))
}

func TestPreferencesMatch(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/move-mode/preferences-match", r.URL.Path)
		assert.Equal(t, "sombra,primera_linea", r.URL.Query().Get("preferences"))
		writeJSON(w, http.StatusOK, map[string]any{"furniture": []uint64{4, 8}})
	})

	ids, err := c.PreferencesMatch(context.Background(), "2025-06-01", []string{"sombra", "primera_linea"})
	require.NoError(t, err)
	require.Equal(t, []uint64{4, 8}, ids)
	require.Equal(t, 1, calls)
}

func TestDisabledCacheIsNilSafe(t *testing.T) {
	var p *PrefCache
	require.Nil(t, NewPrefCache(nil, time.Minute, ""))
	_, ok := p.Get(context.Background(), "2025-06-01", []string{"a"})
	require.False(t, ok)
	p.Set(context.Background(), "2025-06-01", []string{"a"}, []uint64{1})
	p.InvalidateDate(context.Background(), "2025-06-01")
}

func TestPrefsDigestIgnoresOrderAndCase(t *testing.T) {
	require.Equal(t, PrefsDigest([]string{"Sombra", "primera_linea"}), PrefsDigest([]string{"primera_linea ", "sombra"}))
	require.NotEqual(t, PrefsDigest([]string{"sombra"}), PrefsDigest([]string{"sol"}))
}

func TestSignedTokenSource(t *testing.T) {
	src := NewSignedTokenSource("s3cret", "operator-1", 0)
	raw, err := src.Token(context.Background())
	require.NoError(t, err)

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	require.NoError(t, err)
	require.True(t, tok.Valid)
	claims := tok.Claims.(jwt.MapClaims)
	require.Equal(t, "operator-1", claims["sub"])
	require.Equal(t, "move-mode", claims["scope"])
}
