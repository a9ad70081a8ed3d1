package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/pushmfa/internal/push/domain"
	"github.com/aussiebroadwan/pushmfa/internal/push/store"
	"github.com/aussiebroadwan/pushmfa/pkg/cryptox"
	"github.com/aussiebroadwan/pushmfa/pkg/httpx"
	"github.com/aussiebroadwan/pushmfa/pkg/idx"
)

var (
	ErrInvalidDeviceToken = errors.New("invalid device token")

	// ErrDeviceMismatch reports a device-token operation against a device the
	// token is not bound to.
	ErrDeviceMismatch = errors.New("token not bound to this device")
)

const defaultDeviceTokenTTL = 24 * time.Hour

// DeviceService owns the enrollment lifecycle: minting device tokens, the
// device's self-registration, periodic checkins and unenrollment. It also
// validates the "<id>.<secret>" bearer tokens the device presents, which makes
// it the httpx authn middleware's validator.
type DeviceService struct {
	Store  store.Store
	Logger *slog.Logger

	// StageID is the stage newly registered devices are enrolled into,
	// resolved at startup.
	StageID string

	// TokenTTL bounds the life of a minted device token. Zero means the
	// default of 24h.
	TokenTTL time.Duration
}

// EnrollStart mints a device token for a user. The raw token is returned
// exactly once; only the argon2id hash of its secret is stored. The operator
// hands the token to the user out of band (QR code, deep link) and the device
// redeems it at registration.
func (s *DeviceService) EnrollStart(ctx context.Context, userID string) (raw string, expiresAt time.Time, err error) {
	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token secret: %w", err)
	}
	hash, err := cryptox.HashSecret(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("hash token secret: %w", err)
	}

	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = defaultDeviceTokenTTL
	}

	token := domain.DeviceToken{
		ID:         idx.New().String(),
		UserID:     userID,
		SecretHash: hash,
		ExpiresAt:  time.Now().Add(ttl),
	}
	if err := s.Store.DeviceTokens().CreateDeviceToken(ctx, token); err != nil {
		return "", time.Time{}, fmt.Errorf("store device token: %w", err)
	}

	s.Logger.Info("device token minted",
		"token_id", token.ID, "user_id", userID, "expires_at", token.ExpiresAt)
	return token.ID + "." + secret, token.ExpiresAt, nil
}

// RegisterDevice enrolls the device presenting a valid token. The device
// supplies its own opaque identifier plus its push address and state blob; the
// token is bound to the device in the same transaction so a token can only
// ever register one device.
func (s *DeviceService) RegisterDevice(ctx context.Context, tokenID, deviceID, userID, pushToken, state string) (domain.Device, error) {
	device := domain.Device{
		ID:        deviceID,
		UserID:    userID,
		StageID:   s.StageID,
		PushToken: pushToken,
		State:     state,
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Devices().CreateDevice(ctx, device); err != nil {
			return fmt.Errorf("create device: %w", err)
		}
		if err := tx.DeviceTokens().BindDeviceToken(ctx, tokenID, device.ID); err != nil {
			return fmt.Errorf("bind device token: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Device{}, err
	}

	s.Logger.Info("device registered", "device_id", device.ID, "user_id", userID)
	return device, nil
}

// Checkin refreshes the device's push address and state blob. The device id
// must match the one the presented token is bound to.
func (s *DeviceService) Checkin(ctx context.Context, boundDeviceID, deviceID, pushToken, state string) error {
	if boundDeviceID == "" || boundDeviceID != deviceID {
		return ErrDeviceMismatch
	}
	if state == "" {
		state = "{}"
	}
	return s.Store.Devices().Checkin(ctx, deviceID, pushToken, state)
}

// Unenroll removes a device. Pending transactions for it cascade away, so any
// authentication attempt waiting on the device times out.
func (s *DeviceService) Unenroll(ctx context.Context, deviceID string) error {
	if err := s.Store.Devices().DeleteDevice(ctx, deviceID); err != nil {
		return err
	}
	s.Logger.Info("device unenrolled", "device_id", deviceID)
	return nil
}

// ListDevices returns the user's enrolled devices, newest first.
func (s *DeviceService) ListDevices(ctx context.Context, userID string) ([]domain.Device, error) {
	return s.Store.Devices().ListDevicesByUser(ctx, userID)
}

// ValidateDeviceToken checks a raw "<id>.<secret>" bearer token: the id part
// locates the stored record (expired rows are invisible), the secret part is
// verified against the stored argon2id hash.
func (s *DeviceService) ValidateDeviceToken(ctx context.Context, raw string) (httpx.DeviceTokenInfo, error) {
	id, secret, ok := strings.Cut(raw, ".")
	if !ok || id == "" || secret == "" {
		return httpx.DeviceTokenInfo{}, ErrInvalidDeviceToken
	}

	token, err := s.Store.DeviceTokens().GetDeviceToken(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return httpx.DeviceTokenInfo{}, ErrInvalidDeviceToken
	}
	if err != nil {
		return httpx.DeviceTokenInfo{}, fmt.Errorf("load device token: %w", err)
	}

	if err := cryptox.VerifySecret(secret, token.SecretHash); err != nil {
		return httpx.DeviceTokenInfo{}, ErrInvalidDeviceToken
	}

	info := httpx.DeviceTokenInfo{
		TokenID: token.ID,
		UserID:  token.UserID,
	}
	if token.DeviceID != nil {
		info.DeviceID = *token.DeviceID
	}
	return info, nil
}
