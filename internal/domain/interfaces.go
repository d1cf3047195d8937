package domain

import (
	"context"
	"time"

	"restobook/internal/models"
	"restobook/internal/timegraph"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BookingStore is the durable side of the orchestrator.
type BookingStore interface {
	SaveBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, id int64, now time.Time) error
	DeleteBookings(ctx context.Context, ids []int64) (int64, error)
	ListPendingByCorrelation(ctx context.Context, correlationID string) ([]*models.Booking, error)
	DeleteExpiredPending(ctx context.Context, now time.Time) ([]*models.Booking, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type TableStore interface {
	UpsertTable(ctx context.Context, table *models.RestTable) error
	ListTables(ctx context.Context) ([]*models.RestTable, error)
	ListTablesWithBookings(ctx context.Context) ([]*models.RestTable, error)
	DistinctCapacities(ctx context.Context) ([]int, error)
}

// Scheduler is the in-memory time graph.
type Scheduler interface {
	FindBooking(ctx context.Context, start time.Time, duration time.Duration, tier int, correlationID string) (*timegraph.Outcome, error)
	Assign(ctx context.Context, claim timegraph.Claim, bookingID int64) error
	Release(ctx context.Context, claim timegraph.Claim) error
	UnreserveByBookingID(ctx context.Context, ids []int64, ref time.Time) (int, error)
	FillIn(ctx context.Context) error
	Snapshot(ctx context.Context, date time.Time) (*timegraph.DaySchedule, error)
}

// CapacityResolver maps party sizes to table tiers.
type CapacityResolver interface {
	Resolve(persons int) (int, error)
	Refresh(ctx context.Context) error
	Max() int
}

// RequestStateRepository keeps short-lived per-request state outside the process.
type RequestStateRepository interface {
	GetResponse(ctx context.Context, correlationID string) (*models.BookingResponse, error)
	SaveResponse(ctx context.Context, resp *models.BookingResponse, ttl time.Duration) error
	NextWaitlistPosition(ctx context.Context, day time.Time) (int64, error)
	CheckRateLimit(ctx context.Context, guestID int64, limit int, window time.Duration) (bool, error)
}

// BookingService is what transports call on the scheduler side.
type BookingService interface {
	FindBooking(ctx context.Context, req *models.BookingRequest) *models.BookingResponse
	Confirm(ctx context.Context, confirmation *models.SlotConfirmation) *models.BookingResponse
}

// BookingGateway forwards guest requests to the scheduler and waits for the reply.
type BookingGateway interface {
	RequestBooking(ctx context.Context, req *models.BookingRequest) (*models.BookingResponse, error)
	ConfirmSlot(ctx context.Context, confirmation *models.SlotConfirmation) (*models.BookingResponse, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
