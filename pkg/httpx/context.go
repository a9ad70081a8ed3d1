package httpx

type ctxKey string

const (
	CtxKeyUserID   ctxKey = "user_id"
	CtxKeyDeviceID ctxKey = "device_id"
	CtxKeyTokenID  ctxKey = "token_id"
)
