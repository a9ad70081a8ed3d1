package pushsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a client for the push MFA service. Operator-facing calls (Enroll,
// Authenticate) need no credential; device-facing calls (RegisterDevice,
// Checkin, Respond) present the device token minted at enrollment.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// DeviceToken is the "<id>.<secret>" bearer credential for device-facing
	// calls. Set it from the Enroll response.
	DeviceToken string
}

// NewClient creates a new push MFA service client. The default HTTP timeout is
// generous because Authenticate blocks for the transaction's full lifetime.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Enroll mints a device token for a user. The returned token is shown once.
func (c *Client) Enroll(ctx context.Context, userID string) (EnrollResponse, error) {
	var out EnrollResponse
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/enroll", EnrollRequest{UserID: userID}, false)
	if err != nil {
		return out, err
	}
	return out, decodeJSON(resp, &out, http.StatusOK)
}

// RegisterDevice enrolls this device using the client's DeviceToken.
func (c *Client) RegisterDevice(ctx context.Context, req RegisterDeviceRequest) (DeviceResponse, error) {
	var out DeviceResponse
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/devices", req, true)
	if err != nil {
		return out, err
	}
	return out, decodeJSON(resp, &out, http.StatusCreated)
}

// Checkin refreshes the device's push address and state blob.
func (c *Client) Checkin(ctx context.Context, req CheckinRequest) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/devices/checkin", req, true)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// ListDevices returns the devices enrolled for a user, newest first.
func (c *Client) ListDevices(ctx context.Context, userID string) (ListDevicesResponse, error) {
	var out ListDevicesResponse
	resp, err := c.doJSON(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID)+"/devices", nil, false)
	if err != nil {
		return out, err
	}
	return out, decodeJSON(resp, &out, http.StatusOK)
}

// Unenroll removes a device.
func (c *Client) Unenroll(ctx context.Context, deviceID string) error {
	resp, err := c.doJSON(ctx, http.MethodDelete, "/v1/devices/"+url.PathEscape(deviceID), nil, true)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// Authenticate runs a push challenge for a device and blocks until the device
// accepts, denies or the attempt times out. A timeout surfaces as an *APIError
// with code "timeout".
func (c *Client) Authenticate(ctx context.Context, deviceID string) (AuthenticateResponse, error) {
	var out AuthenticateResponse
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/authenticate", AuthenticateRequest{DeviceID: deviceID}, false)
	if err != nil {
		return out, err
	}
	return out, decodeJSON(resp, &out, http.StatusOK)
}

// ListTransactions returns the device's pending challenges. This is the poll
// fallback for when a push never arrives; the payload is the same data the
// push would carry.
func (c *Client) ListTransactions(ctx context.Context) (ListTransactionsResponse, error) {
	var out ListTransactionsResponse
	resp, err := c.doJSON(ctx, http.MethodGet, "/v1/transactions", nil, true)
	if err != nil {
		return out, err
	}
	return out, decodeJSON(resp, &out, http.StatusOK)
}

// Respond records the device's selection for a transaction. The first response
// wins; a repeat returns an *APIError with code "already_decided".
func (c *Client) Respond(ctx context.Context, txID, selectedItem string) error {
	path := "/v1/transactions/" + url.PathEscape(txID) + "/respond"
	resp, err := c.doJSON(ctx, http.MethodPost, path, RespondRequest{SelectedItem: selectedItem}, true)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// GetLiveness checks the service's liveness endpoint.
func (c *Client) GetLiveness(ctx context.Context) (HealthResponse, error) {
	return c.getHealth(ctx, "/livez")
}

// GetReadiness checks the service's readiness endpoint, which includes a
// database ping.
func (c *Client) GetReadiness(ctx context.Context) (HealthResponse, error) {
	return c.getHealth(ctx, "/readyz")
}

func (c *Client) getHealth(ctx context.Context, path string) (HealthResponse, error) {
	var out HealthResponse
	resp, err := c.doJSON(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return out, err
	}
	return out, decodeJSON(resp, &out, http.StatusOK)
}

// doJSON performs an HTTP request with an optional JSON body and an optional
// device token bearer credential.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, authed bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if c.DeviceToken == "" {
			return nil, ErrInvalidToken
		}
		req.Header.Set("Authorization", "Bearer "+c.DeviceToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// decodeJSON decodes a JSON response into the target.
// Returns a typed *APIError if the response indicates an error.
func decodeJSON(resp *http.Response, target any, expectedStatus int) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// checkStatusNoContent returns a typed error if the response status is not 204 No Content.
func checkStatusNoContent(resp *http.Response) error {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return parseErrorResponse(resp, bodyBytes)
	}
	return nil
}
