package push_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/pushmfa/pkg/pushsdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for push MFA service end-to-end tests.
 * This includes container setup, service operations, and assertions.
 *
 * Without FCM credentials in the container, push delivery is disabled; the
 * device side of each test answers through the respond endpoint using the
 * transaction id, which is exactly what a real device extracts from the push.
 */

const (
	testImageName = "pushmfa-test:latest"
)

// TestMain manages the test lifecycle, builds the Docker image once before
// all tests and cleans it up after all tests complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building Push MFA Service Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Push MFA Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

// buildDockerImage builds the test Docker image if it doesn't exist.
func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/pushmfa/Dockerfile",
		"../../../")
	cmd.Dir = "."
	cmd.Stdout = os.Stdout
	cmd.Stderr = nil

	return cmd.Run()
}

// cleanupDockerImage removes the test Docker image.
func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // Ignore errors - image might not exist
}

// setupPushContainer starts the push MFA service in a container and returns
// the base URL. A short poll interval keeps the tests fast while preserving
// the production wait semantics.
func setupPushContainer(t *testing.T, extraEnv map[string]string) (string, func()) {
	t.Helper()
	ctx := context.Background()

	env := map[string]string{
		"PUSHMFA_DATABASE_FILE": "/pushmfa.db",
		"PUSHMFA_STAGE_MODE":    "accept_deny",
		"PUSHMFA_POLL_INTERVAL": "100ms",
		"PUSHMFA_MAX_CHECKS":    "50", // 5s deadline
		"PUSHMFA_BRAND_TITLE":   "Acme",
		"PUSHMFA_DOMAIN":        "login.acme.test",
		"ENV":                   "test",
		"LOG_LEVEL":             "info",
		"LOG_FORMAT":            "json",
		// Relaxed rate limits so rapid test requests don't trip them
		"RATELIMIT_STRICT_REQUESTS":   "1000",
		"RATELIMIT_STRICT_WINDOW_SEC": "60",
		"RATELIMIT_STRICT_BURST":      "1000",
		"RATELIMIT_MODERATE_REQUESTS": "1000",
		"RATELIMIT_MODERATE_BURST":    "1000",
	}
	for k, v := range extraEnv {
		env[k] = v
	}

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env:          env,
		WaitingFor: wait.ForHTTP("/livez").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	baseURL := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return baseURL, cleanup
}

// enrollDevice enrolls a user and registers a device for them, returning a
// client authenticated as that device.
func enrollDevice(t *testing.T, baseURL, userID, deviceID string) *pushsdk.Client {
	t.Helper()
	ctx := context.Background()

	client := pushsdk.NewClient(baseURL)
	enroll, err := client.Enroll(ctx, userID)
	require.NoError(t, err)
	require.NotEmpty(t, enroll.Token)

	client.DeviceToken = enroll.Token
	_, err = client.RegisterDevice(ctx, pushsdk.RegisterDeviceRequest{
		DeviceID:  deviceID,
		PushToken: "e2e-fcm-token",
		State:     `{"os":"e2e"}`,
	})
	require.NoError(t, err)

	return client
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health pushsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.Equal(t, "ok", health.Status)
}
