package api

import (
	"context"
	"testing"

	"restobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) FindBooking(ctx context.Context, req *models.BookingRequest) *models.BookingResponse {
	return m.Called(ctx, req).Get(0).(*models.BookingResponse)
}

func (m *mockService) Confirm(ctx context.Context, c *models.SlotConfirmation) *models.BookingResponse {
	return m.Called(ctx, c).Get(0).(*models.BookingResponse)
}

func TestLocalGateway(t *testing.T) {
	svc := new(mockService)
	gw := NewLocalGateway(svc)
	ctx := context.Background()

	req := &models.BookingRequest{CorrelationID: "a"}
	svc.On("FindBooking", ctx, req).Return(models.NewWaitlistResponse("a", 0, 2)).Once()
	resp, err := gw.RequestBooking(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Waitlist.QueuePosition)

	conf := &models.SlotConfirmation{CorrelationID: "a"}
	svc.On("Confirm", ctx, conf).Return(models.NewErrorResponse("a", 0, models.CodeNotFound, "")).Once()
	resp, err = gw.ConfirmSlot(ctx, conf)
	require.NoError(t, err)
	assert.Equal(t, models.CodeNotFound, resp.ErrorCode())

	svc.AssertExpectations(t)
}
