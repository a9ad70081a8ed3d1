// Package pushsdk provides a Go client and the shared wire types for the push
// MFA service.
//
// Two kinds of callers use it. An authenticating application enrolls users and
// starts challenges:
//
//	client := pushsdk.NewClient("https://push.example.com")
//	enroll, err := client.Enroll(ctx, "alice")
//	...
//	result, err := client.Authenticate(ctx, deviceID) // blocks until decided
//
// A mobile device (or anything acting as one) registers itself with the token
// from enrollment and answers challenges:
//
//	client.DeviceToken = enroll.Token
//	_, err = client.RegisterDevice(ctx, pushsdk.RegisterDeviceRequest{...})
//	err = client.Respond(ctx, txID, "accept")
//
// All errors from the service are typed *APIError values carrying the HTTP
// status and the machine-readable error code.
package pushsdk
