package pushsdk

import "time"

// ErrorResponse is the wire shape of an API error envelope.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// EnrollRequest starts enrollment for a user.
type EnrollRequest struct {
	UserID string `json:"user_id"`
}

// EnrollResponse carries the freshly minted device token. The token is shown
// exactly once; hand it to the device out of band.
type EnrollResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterDeviceRequest is the device's self-registration payload, presented
// with the enrollment token as a bearer credential.
type RegisterDeviceRequest struct {
	DeviceID  string `json:"device_id"`
	PushToken string `json:"push_token"`
	State     string `json:"state,omitempty"` // free-form JSON blob
}

// DeviceResponse describes an enrolled device.
type DeviceResponse struct {
	DeviceID    string    `json:"device_id"`
	UserID      string    `json:"user_id"`
	PushToken   string    `json:"push_token"`
	State       string    `json:"state"`
	LastCheckin time.Time `json:"last_checkin"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListDevicesResponse holds a user's enrolled devices, newest first.
type ListDevicesResponse struct {
	Devices []DeviceResponse `json:"devices"`
}

// CheckinRequest refreshes the device's push address and state blob.
type CheckinRequest struct {
	DeviceID  string `json:"device_id"`
	PushToken string `json:"push_token"`
	State     string `json:"state,omitempty"`
}

// AuthenticateRequest starts a push challenge for a device. The call blocks
// until the device responds or the attempt times out.
type AuthenticateRequest struct {
	DeviceID string `json:"device_id"`
}

// AuthenticateResponse reports the outcome of a push challenge: "accept" or
// "deny". Timeouts are reported as a 504 error, not a result.
type AuthenticateResponse struct {
	Result string `json:"result"`
}

// TransactionResponse is one pending challenge as the device sees it: the
// candidate items only, never which of them is correct.
type TransactionResponse struct {
	TransactionID string    `json:"tx_id"`
	DecisionItems []string  `json:"decision_items"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ListTransactionsResponse holds the device's pending challenges, oldest first.
type ListTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

// RespondRequest is the device's answer to a challenge.
type RespondRequest struct {
	SelectedItem string `json:"selected_item"`
}

// HealthResponse is returned by the livez/readyz endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of the service's critical dependencies.
type HealthChecks struct {
	Database string `json:"database"`
}
