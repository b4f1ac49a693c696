package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/raterudder/eiademand/pkg/pipeline"
	"github.com/raterudder/eiademand/pkg/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testAudience = "test-audience"

type mockAggregator struct {
	mock.Mock
}

func (m *mockAggregator) Aggregate(ctx context.Context, entities []string, outName string, imputed bool) (types.Table, error) {
	args := m.Called(ctx, entities, outName, imputed)
	return args.Get(0).(types.Table), args.Error(1)
}

func (m *mockAggregator) Schema() types.SchemaVariant {
	return types.SchemaWithForecast
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, start, end time.Time) (pipeline.Report, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).(pipeline.Report), args.Error(1)
}

func (m *mockRunner) SeriesStart() time.Time {
	return pipeline.DefaultSeriesStart
}

// setupOIDCTest starts an issuer serving discovery and a key set for priv.
func setupOIDCTest(t *testing.T) (*httptest.Server, *rsa.PrivateKey) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                srv.URL,
			"jwks_uri":                              srv.URL + "/keys",
			"authorization_endpoint":                srv.URL + "/auth",
			"token_endpoint":                        srv.URL + "/token",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{
				Key:       &priv.PublicKey,
				KeyID:     "test",
				Algorithm: string(jose.RS256),
				Use:       "sig",
			}},
		})
	})
	return srv, priv
}

func generateTestToken(t *testing.T, issuer string, priv *rsa.PrivateKey, email string) string {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: priv, KeyID: "test"}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	now := time.Now()
	payload, err := json.Marshal(map[string]any{
		"iss":   issuer,
		"aud":   testAudience,
		"sub":   "scheduler",
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	obj, err := signer.Sign(payload)
	require.NoError(t, err)
	token, err := obj.CompactSerialize()
	require.NoError(t, err)
	return token
}

func testVerifier(t *testing.T, issuer string) tokenVerifier {
	provider, err := oidc.NewProvider(context.Background(), issuer)
	require.NoError(t, err)
	return provider.Verifier(&oidc.Config{ClientID: testAudience}).Verify
}
