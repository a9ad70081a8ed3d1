package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	fcmEndpoint = "https://fcm.googleapis.com/v1/projects/%s/messages:send"
	fcmScope    = "https://www.googleapis.com/auth/firebase.messaging"

	// Access tokens are good for an hour; refresh a little early so an
	// in-flight send never races the expiry.
	tokenLifetime = time.Hour
	tokenSlack    = 2 * time.Minute
)

// serviceAccount is the subset of a Google service-account JSON key that the
// token exchange needs.
type serviceAccount struct {
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
}

// FCMClient delivers challenge messages over the FCM HTTP v1 API. It signs its
// own service-account assertion and caches the exchanged access token, so it
// carries no dependency on the Google SDKs.
type FCMClient struct {
	HTTP *http.Client

	account serviceAccount
	signKey any

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	// Endpoints are overridable for tests.
	sendURL  string
	tokenURL string
}

// NewFCMClient parses the service-account credentials JSON (the stage's FCM
// credentials blob) and returns a ready client.
func NewFCMClient(credentialsJSON []byte) (*FCMClient, error) {
	var account serviceAccount
	if err := json.Unmarshal(credentialsJSON, &account); err != nil {
		return nil, fmt.Errorf("parse fcm credentials: %w", err)
	}
	if account.ProjectID == "" || account.ClientEmail == "" || account.PrivateKey == "" {
		return nil, fmt.Errorf("fcm credentials missing project_id, client_email or private_key")
	}
	if account.TokenURI == "" {
		account.TokenURI = "https://oauth2.googleapis.com/token"
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(account.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse fcm private key: %w", err)
	}

	return &FCMClient{
		HTTP:     &http.Client{Timeout: 10 * time.Second},
		account:  account,
		signKey:  key,
		sendURL:  fmt.Sprintf(fcmEndpoint, account.ProjectID),
		tokenURL: account.TokenURI,
	}, nil
}

// Deliver sends the challenge to the device via FCM. The payload carries the
// transaction id and the decision items only.
func (c *FCMClient) Deliver(ctx context.Context, msg Message) error {
	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("fcm token exchange: %w", err)
	}

	items, err := json.Marshal(msg.DecisionItems)
	if err != nil {
		return fmt.Errorf("encode decision items: %w", err)
	}

	payload := map[string]any{
		"message": map[string]any{
			"token": msg.PushToken,
			"notification": map[string]any{
				"title": fmt.Sprintf("%s authentication request", msg.BrandTitle),
				"body":  fmt.Sprintf("%s is attempting to log in to %s", msg.Username, msg.Domain),
			},
			"android": map[string]any{
				"priority": "normal",
				"notification": map[string]any{
					"icon":  "stock_ticker_update",
					"color": "#f45342",
				},
				"data": map[string]string{
					"tx_id":               msg.TransactionID,
					"user_decision_items": string(items),
				},
			},
			"apns": map[string]any{
				"headers": map[string]string{
					"apns-push-type": "alert",
					"apns-priority":  "10",
				},
				"payload": map[string]any{
					"aps": map[string]any{
						"badge":             0,
						"sound":             "default",
						"content-available": 1,
						"category":          "cat_push_authorization",
					},
					"interruption-level":  "time-sensitive",
					"tx_id":               msg.TransactionID,
					"user_decision_items": msg.DecisionItems,
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode fcm message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("fcm send: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// token returns a valid access token, exchanging a fresh assertion when the
// cached one is near expiry.
func (c *FCMClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > tokenSlack {
		return c.accessToken, nil
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   c.account.ClientEmail,
		"scope": fcmScope,
		"aud":   c.account.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenLifetime).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}

	form := "grant_type=urn:ietf:params:oauth:grant-type:jwt-bearer&assertion=" + assertion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader([]byte(form)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, detail)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	c.accessToken = out.AccessToken
	c.tokenExpiry = now.Add(time.Duration(out.ExpiresIn) * time.Second)
	return c.accessToken, nil
}
