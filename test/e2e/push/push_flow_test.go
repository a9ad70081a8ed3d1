package push_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/pushmfa/pkg/pushsdk"
	"github.com/stretchr/testify/require"
)

// pollTransaction polls the device's pending challenges until one appears.
func pollTransaction(t *testing.T, device *pushsdk.Client) pushsdk.TransactionResponse {
	t.Helper()
	ctx := context.Background()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		pending, err := device.ListTransactions(ctx)
		require.NoError(t, err)
		if len(pending.Transactions) > 0 {
			return pending.Transactions[0]
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("no pending transaction appeared")
	return pushsdk.TransactionResponse{}
}

func TestHealthEndpoints(t *testing.T) {
	baseURL, cleanup := setupPushContainer(t, nil)
	defer cleanup()
	ctx := context.Background()

	client := pushsdk.NewClient(baseURL)

	health, err := client.GetLiveness(ctx)
	assertHealthy(t, health, err)

	ready, err := client.GetReadiness(ctx)
	assertHealthy(t, ready, err)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
}

func TestAcceptFlow(t *testing.T) {
	baseURL, cleanup := setupPushContainer(t, nil)
	defer cleanup()
	ctx := context.Background()

	device := enrollDevice(t, baseURL, "alice", "e2e-phone-1")
	app := pushsdk.NewClient(baseURL)

	type authResult struct {
		resp pushsdk.AuthenticateResponse
		err  error
	}
	resultCh := make(chan authResult, 1)
	go func() {
		resp, err := app.Authenticate(ctx, "e2e-phone-1")
		resultCh <- authResult{resp, err}
	}()

	tx := pollTransaction(t, device)
	require.Equal(t, []string{"accept", "deny"}, tx.DecisionItems)

	require.NoError(t, device.Respond(ctx, tx.TransactionID, "accept"))

	res := <-resultCh
	require.NoError(t, res.err)
	require.Equal(t, "accept", res.resp.Result)

	// The finished transaction is gone from the device's view too.
	pending, err := device.ListTransactions(ctx)
	require.NoError(t, err)
	require.Empty(t, pending.Transactions)
}

func TestDenyFlow(t *testing.T) {
	baseURL, cleanup := setupPushContainer(t, nil)
	defer cleanup()
	ctx := context.Background()

	device := enrollDevice(t, baseURL, "bob", "e2e-phone-2")
	app := pushsdk.NewClient(baseURL)

	resultCh := make(chan pushsdk.AuthenticateResponse, 1)
	go func() {
		resp, err := app.Authenticate(ctx, "e2e-phone-2")
		require.NoError(t, err)
		resultCh <- resp
	}()

	tx := pollTransaction(t, device)
	require.NoError(t, device.Respond(ctx, tx.TransactionID, "deny"))
	require.Equal(t, "deny", (<-resultCh).Result)
}

func TestNumberMatchingFlow(t *testing.T) {
	baseURL, cleanup := setupPushContainer(t, map[string]string{
		"PUSHMFA_STAGE_MODE": "number_matching_3",
	})
	defer cleanup()
	ctx := context.Background()

	device := enrollDevice(t, baseURL, "carol", "e2e-phone-3")
	app := pushsdk.NewClient(baseURL)

	resultCh := make(chan pushsdk.AuthenticateResponse, 1)
	go func() {
		resp, err := app.Authenticate(ctx, "e2e-phone-3")
		require.NoError(t, err)
		resultCh <- resp
	}()

	tx := pollTransaction(t, device)
	require.Len(t, tx.DecisionItems, 3)
	require.Regexp(t, `^\d{3}$`, tx.DecisionItems[0])

	require.NoError(t, device.Respond(ctx, tx.TransactionID, tx.DecisionItems[0]))
	require.Equal(t, "accept", (<-resultCh).Result)
}

func TestTimeoutFlow(t *testing.T) {
	baseURL, cleanup := setupPushContainer(t, map[string]string{
		"PUSHMFA_MAX_CHECKS": "10", // 1s deadline
	})
	defer cleanup()
	ctx := context.Background()

	_ = enrollDevice(t, baseURL, "dave", "e2e-phone-4")
	app := pushsdk.NewClient(baseURL)

	_, err := app.Authenticate(ctx, "e2e-phone-4")
	var apiErr *pushsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 504, apiErr.StatusCode)
	require.Equal(t, pushsdk.ErrorCodeTimeout, apiErr.Code)
}

func TestUnenrollFlow(t *testing.T) {
	baseURL, cleanup := setupPushContainer(t, nil)
	defer cleanup()
	ctx := context.Background()

	device := enrollDevice(t, baseURL, "erin", "e2e-phone-5")

	require.NoError(t, device.Checkin(ctx, pushsdk.CheckinRequest{
		DeviceID:  "e2e-phone-5",
		PushToken: "e2e-fcm-token-2",
	}))

	require.NoError(t, device.Unenroll(ctx, "e2e-phone-5"))

	// A challenge for an unenrolled device fails fast.
	_, err := pushsdk.NewClient(baseURL).Authenticate(ctx, "e2e-phone-5")
	var apiErr *pushsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, pushsdk.ErrorCodeNotFound, apiErr.Code)
}

func TestRateLimiting(t *testing.T) {
	baseURL, cleanup := setupPushContainer(t, map[string]string{
		// Production-like strict limits for the respond endpoint
		"RATELIMIT_STRICT_REQUESTS":   "5",
		"RATELIMIT_STRICT_WINDOW_SEC": "60",
		"RATELIMIT_STRICT_BURST":      "5",
	})
	defer cleanup()
	ctx := context.Background()

	device := enrollDevice(t, baseURL, "frank", "e2e-phone-6")

	// Hammer the respond endpoint; the strict limiter kicks in after the
	// burst even though every request fails with not-found.
	var limited bool
	for range 10 {
		err := device.Respond(ctx, "11111111-1111-1111-1111-111111111111", "accept")
		var apiErr *pushsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		if apiErr.StatusCode == 429 {
			limited = true
			break
		}
	}
	require.True(t, limited, "expected the strict rate limit to trigger")
}
