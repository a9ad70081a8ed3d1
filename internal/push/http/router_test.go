package http

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/pushmfa/internal/push/domain"
	"github.com/aussiebroadwan/pushmfa/internal/push/notify"
	"github.com/aussiebroadwan/pushmfa/internal/push/service"
	"github.com/aussiebroadwan/pushmfa/internal/push/store/drivers/sqlite"
	"github.com/aussiebroadwan/pushmfa/pkg/idx"
	"github.com/aussiebroadwan/pushmfa/pkg/pushsdk"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	Delivered chan notify.Message
}

func (c *captureNotifier) Deliver(_ context.Context, msg notify.Message) error {
	c.Delivered <- msg
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *captureNotifier) {
	srv, notifier, _ := newTestServerRouter(t)
	return srv, notifier
}

func newTestServerRouter(t *testing.T) (*httptest.Server, *captureNotifier, *Router) {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	stage := domain.Stage{
		ID:               idx.New().String(),
		Name:             "default",
		ItemMatchingMode: domain.ItemMatchingAcceptDeny,
	}
	require.NoError(t, st.Stages().CreateStage(ctx, stage))

	logger := slog.New(slog.DiscardHandler)
	notifier := &captureNotifier{Delivered: make(chan notify.Message, 4)}

	coord := service.NewCoordinatorService(st, notifier, logger)
	coord.PollInterval = 10 * time.Millisecond
	coord.MaxChecks = 200

	router := NewRouter("test", st, logger)
	router.DeviceService = &service.DeviceService{Store: st, Logger: logger, StageID: stage.ID}
	router.Coordinator = coord
	router.Responder = &service.ResponderService{Store: st, Waker: coord, Logger: logger}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, notifier, router
}

func TestFullAuthenticationFlow(t *testing.T) {
	srv, notifier := newTestServer(t)
	ctx := context.Background()

	appClient := pushsdk.NewClient(srv.URL)
	deviceClient := pushsdk.NewClient(srv.URL)

	// Operator enrolls the user and hands the token to the device.
	enroll, err := appClient.Enroll(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, enroll.Token)
	deviceClient.DeviceToken = enroll.Token

	// Device registers itself.
	device, err := deviceClient.RegisterDevice(ctx, pushsdk.RegisterDeviceRequest{
		DeviceID:  "phone-1",
		PushToken: "fcm-tok",
		State:     `{"os":"android"}`,
	})
	require.NoError(t, err)
	require.Equal(t, "alice", device.UserID)

	// And checks in with a fresh push token.
	require.NoError(t, deviceClient.Checkin(ctx, pushsdk.CheckinRequest{
		DeviceID:  "phone-1",
		PushToken: "fcm-tok-2",
	}))

	// The operator sees the enrolled device.
	listed, err := appClient.ListDevices(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, listed.Devices, 1)
	require.Equal(t, "phone-1", listed.Devices[0].DeviceID)
	require.Equal(t, "fcm-tok-2", listed.Devices[0].PushToken)

	// Application starts a challenge; the device approves it.
	type authResult struct {
		resp pushsdk.AuthenticateResponse
		err  error
	}
	resultCh := make(chan authResult, 1)
	go func() {
		resp, err := appClient.Authenticate(ctx, "phone-1")
		resultCh <- authResult{resp, err}
	}()

	var msg notify.Message
	select {
	case msg = <-notifier.Delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("no push delivered")
	}
	require.Equal(t, "fcm-tok-2", msg.PushToken)
	require.Equal(t, []string{"accept", "deny"}, msg.DecisionItems)

	// The poll fallback shows the same challenge the push carried.
	pending, err := deviceClient.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, pending.Transactions, 1)
	require.Equal(t, msg.TransactionID, pending.Transactions[0].TransactionID)
	require.Equal(t, msg.DecisionItems, pending.Transactions[0].DecisionItems)

	require.NoError(t, deviceClient.Respond(ctx, msg.TransactionID, "accept"))

	res := <-resultCh
	require.NoError(t, res.err)
	require.Equal(t, "accept", res.resp.Result)

	// Device unenrolls itself and drops out of the operator's view.
	require.NoError(t, deviceClient.Unenroll(ctx, "phone-1"))
	listed, err = appClient.ListDevices(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, listed.Devices)
}

func TestDenyFlow(t *testing.T) {
	srv, notifier := newTestServer(t)
	ctx := context.Background()

	client := pushsdk.NewClient(srv.URL)
	enroll, err := client.Enroll(ctx, "bob")
	require.NoError(t, err)
	client.DeviceToken = enroll.Token

	_, err = client.RegisterDevice(ctx, pushsdk.RegisterDeviceRequest{
		DeviceID: "phone-2", PushToken: "fcm-tok",
	})
	require.NoError(t, err)

	resultCh := make(chan pushsdk.AuthenticateResponse, 1)
	go func() {
		resp, err := client.Authenticate(ctx, "phone-2")
		require.NoError(t, err)
		resultCh <- resp
	}()

	msg := <-notifier.Delivered
	require.NoError(t, client.Respond(ctx, msg.TransactionID, "deny"))
	require.Equal(t, "deny", (<-resultCh).Result)
}

func TestHTTPErrors(t *testing.T) {
	srv, notifier := newTestServer(t)
	ctx := context.Background()

	client := pushsdk.NewClient(srv.URL)

	t.Run("EnrollMissingUser", func(t *testing.T) {
		_, err := client.Enroll(ctx, "")
		var apiErr *pushsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, pushsdk.ErrorCodeInvalidRequest, apiErr.Code)
	})

	t.Run("RegisterWithoutToken", func(t *testing.T) {
		_, err := client.RegisterDevice(ctx, pushsdk.RegisterDeviceRequest{
			DeviceID: "x", PushToken: "y",
		})
		require.ErrorIs(t, err, pushsdk.ErrInvalidToken)
	})

	t.Run("RegisterWithGarbageToken", func(t *testing.T) {
		bad := pushsdk.NewClient(srv.URL)
		bad.DeviceToken = "not.a-real-token"
		_, err := bad.RegisterDevice(ctx, pushsdk.RegisterDeviceRequest{
			DeviceID: "x", PushToken: "y",
		})
		var apiErr *pushsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, 401, apiErr.StatusCode)
	})

	t.Run("AuthenticateUnknownDevice", func(t *testing.T) {
		_, err := client.Authenticate(ctx, "never-enrolled")
		var apiErr *pushsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, pushsdk.ErrorCodeNotFound, apiErr.Code)
	})

	enroll, err := client.Enroll(ctx, "carol")
	require.NoError(t, err)
	client.DeviceToken = enroll.Token
	_, err = client.RegisterDevice(ctx, pushsdk.RegisterDeviceRequest{
		DeviceID: "phone-3", PushToken: "fcm-tok",
	})
	require.NoError(t, err)

	t.Run("DuplicateDevice", func(t *testing.T) {
		other := pushsdk.NewClient(srv.URL)
		otherEnroll, err := other.Enroll(ctx, "dave")
		require.NoError(t, err)
		other.DeviceToken = otherEnroll.Token

		_, err = other.RegisterDevice(ctx, pushsdk.RegisterDeviceRequest{
			DeviceID: "phone-3", PushToken: "fcm-tok",
		})
		var apiErr *pushsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, pushsdk.ErrorCodeAlreadyExists, apiErr.Code)
	})

	t.Run("RespondUnknownTransaction", func(t *testing.T) {
		err := client.Respond(ctx, "11111111-1111-1111-1111-111111111111", "accept")
		var apiErr *pushsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, pushsdk.ErrorCodeNotFound, apiErr.Code)
	})

	t.Run("UnenrollForeignDevice", func(t *testing.T) {
		err := client.Unenroll(ctx, "someone-elses-phone")
		var apiErr *pushsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, pushsdk.ErrorCodeAccessDenied, apiErr.Code)
	})

	t.Run("RespondForeignDevice", func(t *testing.T) {
		// A challenge for carol's phone answered with an unbound token.
		resultCh := make(chan error, 1)
		go func() {
			_, err := pushsdk.NewClient(srv.URL).Authenticate(ctx, "phone-3")
			resultCh <- err
		}()
		msg := <-notifier.Delivered

		eve := pushsdk.NewClient(srv.URL)
		eveEnroll, err := eve.Enroll(ctx, "eve")
		require.NoError(t, err)
		eve.DeviceToken = eveEnroll.Token

		err = eve.Respond(ctx, msg.TransactionID, "accept")
		var apiErr *pushsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, pushsdk.ErrorCodeAccessDenied, apiErr.Code)

		// The legitimate device can still answer.
		require.NoError(t, client.Respond(ctx, msg.TransactionID, "deny"))
		require.NoError(t, <-resultCh)
	})
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()
	client := pushsdk.NewClient(srv.URL)

	live, err := client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
}

func TestAuthenticateTimeoutHTTP(t *testing.T) {
	srv, notifier, router := newTestServerRouter(t)
	router.Coordinator.MaxChecks = 5 // 50ms deadline
	ctx := context.Background()

	client := pushsdk.NewClient(srv.URL)
	enroll, err := client.Enroll(ctx, "frank")
	require.NoError(t, err)
	client.DeviceToken = enroll.Token
	_, err = client.RegisterDevice(ctx, pushsdk.RegisterDeviceRequest{
		DeviceID: "phone-5", PushToken: "fcm-tok",
	})
	require.NoError(t, err)

	// Never respond; drain the push and wait for the 504.
	go func() { <-notifier.Delivered }()

	_, err = client.Authenticate(ctx, "phone-5")
	var apiErr *pushsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, pushsdk.ErrorCodeTimeout, apiErr.Code)
	require.Equal(t, 504, apiErr.StatusCode)
}

func TestRespondTwice(t *testing.T) {
	srv, notifier := newTestServer(t)
	ctx := context.Background()

	client := pushsdk.NewClient(srv.URL)
	enroll, err := client.Enroll(ctx, "grace")
	require.NoError(t, err)
	client.DeviceToken = enroll.Token
	_, err = client.RegisterDevice(ctx, pushsdk.RegisterDeviceRequest{
		DeviceID: "phone-6", PushToken: "fcm-tok",
	})
	require.NoError(t, err)

	resultCh := make(chan error, 1)
	go func() {
		_, err := pushsdk.NewClient(srv.URL).Authenticate(ctx, "phone-6")
		resultCh <- err
	}()
	msg := <-notifier.Delivered

	require.NoError(t, client.Respond(ctx, msg.TransactionID, "accept"))
	require.NoError(t, <-resultCh)

	// The coordinator already finalized and deleted the record; a second
	// response finds nothing (or, if it races the delete, a decided record).
	err = client.Respond(ctx, msg.TransactionID, "accept")
	var apiErr *pushsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Contains(t, []string{pushsdk.ErrorCodeNotFound, pushsdk.ErrorCodeAlreadyDecided}, apiErr.Code)
}
