package api

import (
	"context"

	"restobook/internal/domain"
	"restobook/internal/models"
)

// LocalGateway serves HTTP bookings from the scheduler process itself, without the broker.
type LocalGateway struct {
	service domain.BookingService
}

func NewLocalGateway(service domain.BookingService) *LocalGateway {
	return &LocalGateway{service: service}
}

func (g *LocalGateway) RequestBooking(ctx context.Context, req *models.BookingRequest) (*models.BookingResponse, error) {
	return g.service.FindBooking(ctx, req), nil
}

func (g *LocalGateway) ConfirmSlot(ctx context.Context, conf *models.SlotConfirmation) (*models.BookingResponse, error) {
	return g.service.Confirm(ctx, conf), nil
}
