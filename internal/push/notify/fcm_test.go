package notify

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCredentials(t *testing.T) []byte {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	creds, err := json.Marshal(map[string]string{
		"project_id":   "test-project",
		"client_email": "pushmfa@test-project.iam.gserviceaccount.com",
		"private_key":  string(keyPEM),
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
	require.NoError(t, err)
	return creds
}

func TestFCMClientDeliver(t *testing.T) {
	var tokenCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", r.Form.Get("grant_type"))
		require.NotEmpty(t, r.Form.Get("assertion"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-123",
			"expires_in":   3600,
		})
	})

	var sent map[string]any
	mux.HandleFunc("POST /send", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "projects/test-project/messages/1"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewFCMClient(testCredentials(t))
	require.NoError(t, err)
	client.tokenURL = srv.URL + "/token"
	client.sendURL = srv.URL + "/send"

	msg := Message{
		TransactionID: "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		DecisionItems: []string{"12", "47", "83"},
		PushToken:     "fcm-reg-token",
		BrandTitle:    "Acme",
		Domain:        "login.acme.test",
		Username:      "alice",
	}
	require.NoError(t, client.Deliver(context.Background(), msg))

	message := sent["message"].(map[string]any)
	require.Equal(t, "fcm-reg-token", message["token"])

	notification := message["notification"].(map[string]any)
	require.Equal(t, "Acme authentication request", notification["title"])
	require.Equal(t, "alice is attempting to log in to login.acme.test", notification["body"])

	data := message["android"].(map[string]any)["data"].(map[string]any)
	require.Equal(t, msg.TransactionID, data["tx_id"])

	var items []string
	require.NoError(t, json.Unmarshal([]byte(data["user_decision_items"].(string)), &items))
	require.Equal(t, msg.DecisionItems, items)

	// The payload must never leak which item is the correct one: the only
	// string fields are the ones we put in, all drawn from the items list.
	raw, err := json.Marshal(sent)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "correct")

	t.Run("TokenCached", func(t *testing.T) {
		require.NoError(t, client.Deliver(context.Background(), msg))
		require.Equal(t, int64(1), tokenCalls.Load())
	})
}

func TestFCMClientTokenRefresh(t *testing.T) {
	var tokenCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at-123", "expires_in": 3600})
	})
	mux.HandleFunc("POST /send", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewFCMClient(testCredentials(t))
	require.NoError(t, err)
	client.tokenURL = srv.URL + "/token"
	client.sendURL = srv.URL + "/send"

	require.NoError(t, client.Deliver(context.Background(), Message{}))

	// Expire the cached token; the next send must exchange again.
	client.mu.Lock()
	client.tokenExpiry = time.Now().Add(-time.Minute)
	client.mu.Unlock()

	require.NoError(t, client.Deliver(context.Background(), Message{}))
	require.Equal(t, int64(2), tokenCalls.Load())
}

func TestFCMClientSendFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at-123", "expires_in": 3600})
	})
	mux.HandleFunc("POST /send", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"status":"NOT_FOUND"}}`, http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewFCMClient(testCredentials(t))
	require.NoError(t, err)
	client.tokenURL = srv.URL + "/token"
	client.sendURL = srv.URL + "/send"

	err = client.Deliver(context.Background(), Message{PushToken: "gone"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 404")
}

func TestNewFCMClientBadCredentials(t *testing.T) {
	_, err := NewFCMClient([]byte(`{"project_id":"p"}`))
	require.Error(t, err)

	_, err = NewFCMClient([]byte(`not json`))
	require.Error(t, err)
}
