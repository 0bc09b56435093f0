package monitoring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckAllHealthy(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("relay", time.Second, func(ctx context.Context) error { return nil })
	h.AddCheck("store", time.Second, func(ctx context.Context) error { return nil })

	status := h.CheckAll(context.Background())

	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["relay"])
	assert.Equal(t, "healthy", status.Checks["store"])
}

func TestCheckAllOneFailureMarksUnhealthy(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("relay", time.Second, func(ctx context.Context) error {
		return fmt.Errorf("relay channel disconnected")
	})
	h.AddCheck("store", time.Second, func(ctx context.Context) error { return nil })

	status := h.CheckAll(context.Background())

	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "relay channel disconnected", status.Checks["relay"])
	assert.Equal(t, "healthy", status.Checks["store"])
}

func TestCheckAllNoChecks(t *testing.T) {
	h := NewHealthChecker()

	status := h.CheckAll(context.Background())

	assert.Equal(t, "healthy", status.Status)
	assert.Empty(t, status.Checks)
}
