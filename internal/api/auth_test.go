package api

import (
	"net/http"
	"testing"

	"restobook/internal/config"
	"restobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func authConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "site", Extra: "site-extra", Permissions: []string{permWriteBookings}},
				{Key: "admin", Extra: "admin-extra"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 200},
	}
}

func TestAuth(t *testing.T) {
	gw := new(mockGateway)
	gw.On("ConfirmSlot", mock.Anything, mock.Anything).Return(models.NewSuccessResponse("c", 0, models.SuccessBody{}), nil)
	reader := &stubSchedule{schedule: testSchedule()}
	srv := newTestServer(authConfig(), Options{Gateway: gw, Schedule: reader})
	h := srv.Handler()

	const confirm = `{"correlation_id":"c","slot":{"booking_id":1}}`

	t.Run("HealthzIsOpen", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	})

	t.Run("MissingHeaders", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/bookings/confirm", confirm)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), errMissingHeaders.Error())
	})

	t.Run("InvalidKey", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/bookings/confirm", confirm, "x-api-key", "nope", "x-api-extra", "site-extra")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("InvalidExtra", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/bookings/confirm", confirm, "x-api-key", "site", "x-api-extra", "wrong")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Allowed", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/bookings/confirm", confirm, "x-api-key", "site", "x-api-extra", "site-extra")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/schedule?date=2025-03-14", "", "x-api-key", "site", "x-api-extra", "site-extra")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("EmptyPermissionsAllowAll", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/schedule?date=2025-03-14", "", "x-api-key", "admin", "x-api-extra", "admin-extra")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	cfg := config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 1}}
	srv := newTestServer(cfg, Options{Schedule: &stubSchedule{schedule: testSchedule()}})
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/schedule?date=2025-03-14", "", "x-api-key", "k1").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/v1/schedule?date=2025-03-14", "", "x-api-key", "k1").Code)
	// лимит считается отдельно на каждый ключ
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/schedule?date=2025-03-14", "", "x-api-key", "k2").Code)
}

func TestRequiredPermission(t *testing.T) {
	assert.Equal(t, permWriteBookings, requiredPermission("/api/v1/bookings"))
	assert.Equal(t, permWriteBookings, requiredPermission("/api/v1/bookings/confirm"))
	assert.Equal(t, permReadSchedule, requiredPermission("/api/v1/schedule/export"))
	assert.Equal(t, "", requiredPermission("/metrics"))
}

func TestLimiterReusesPerKey(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 1})
	assert.Same(t, l.getLimiter("a"), l.getLimiter("a"))
	assert.NotSame(t, l.getLimiter("a"), l.getLimiter("b"))
	assert.Equal(t, 5, l.getLimiter("a").Burst())

	off := newRateLimiter(config.APIRateLimitConfig{})
	for i := 0; i < 10; i++ {
		assert.True(t, off.allow("a"))
	}
}
