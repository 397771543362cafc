package metabase_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/stretchr/testify/require"
)

var signClock = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestSigner(secret string) *metabase.Signer {
	return metabase.NewSigner(metabase.SignerConfig{
		Secret:    secret,
		PublicURL: "https://bi.example.com",
		TTL:       30 * time.Minute,
		Now:       func() time.Time { return signClock },
	})
}

func Test_SignDashboard(t *testing.T) {
	s := newTestSigner("embed-secret")

	signed, err := s.SignDashboard(42, nil)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(signed.URL, "https://bi.example.com/embed/dashboard/"))
	require.True(t, strings.HasSuffix(signed.URL, "#bordered=false&titled=false"))
	require.Equal(t, 30, signed.ExpiresInMinutes)

	token := strings.TrimSuffix(strings.TrimPrefix(signed.URL, "https://bi.example.com/embed/dashboard/"), "#bordered=false&titled=false")
	require.Equal(t, 2, strings.Count(token, "."))

	// Expiry is validated against the same clock the signer used.
	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte("embed-secret"), nil
	}, jwt.WithTimeFunc(func() time.Time { return signClock }))
	require.NoError(t, err)

	resource, ok := claims["resource"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(42), resource["dashboard"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.March, 1, 12, 30, 0, 0, time.UTC), exp.Time.UTC())
}

func Test_SignCollectionKeepsTitles(t *testing.T) {
	s := newTestSigner("embed-secret")

	signed, err := s.SignCollection(7)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(signed.URL, "https://bi.example.com/embed/collection/"))
	require.True(t, strings.HasSuffix(signed.URL, "#bordered=false&titled=true"))
}

func Test_SignDeterministic(t *testing.T) {
	s := newTestSigner("embed-secret")

	first, err := s.SignDashboard(42, map[string]any{"region": "south"})
	require.NoError(t, err)

	second, err := s.SignDashboard(42, map[string]any{"region": "south"})
	require.NoError(t, err)

	require.Equal(t, first.URL, second.URL)

	other, err := s.SignDashboard(43, map[string]any{"region": "south"})
	require.NoError(t, err)
	require.NotEqual(t, first.URL, other.URL)
}

func Test_SignWithoutSecret(t *testing.T) {
	s := newTestSigner("")

	_, err := s.SignDashboard(42, nil)
	require.ErrorIs(t, err, metabase.ErrNoSecret)

	_, err = s.SignCollection(7)
	require.ErrorIs(t, err, metabase.ErrNoSecret)
}
