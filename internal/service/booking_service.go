package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restobook/internal/capacity"
	"restobook/internal/config"
	"restobook/internal/database"
	"restobook/internal/domain"
	"restobook/internal/events"
	"restobook/internal/metrics"
	"restobook/internal/models"
	"restobook/internal/timegraph"
	"restobook/internal/worker"

	"github.com/rs/zerolog"
)

// ErrConfirmationExpired means the chosen hold is gone or ran out before the guest picked it.
var ErrConfirmationExpired = errors.New("confirmation expired")

// OperatingDays maps an instant to the restaurant day it belongs to.
type OperatingDays interface {
	OperatingDay(t time.Time) time.Time
}

// Dependencies of the booking orchestrator. State and Events may be nil.
// Location is the restaurant time zone; nil keeps request times as sent.
type Dependencies struct {
	Store    domain.BookingStore
	Graph    domain.Scheduler
	Capacity domain.CapacityResolver
	State    domain.RequestStateRepository
	Events   domain.EventPublisher
	Hours    OperatingDays
	Location *time.Location
}

type BookingService struct {
	store    domain.BookingStore
	graph    domain.Scheduler
	capacity domain.CapacityResolver
	state    domain.RequestStateRepository
	eventBus domain.EventPublisher
	hours    OperatingDays
	loc      *time.Location

	retry           worker.RetryPolicy
	pendingTTL      time.Duration
	responseTTL     time.Duration
	maxPersons      int
	guestRateLimit  int
	guestRateWindow time.Duration

	now    func() time.Time
	logger *zerolog.Logger
}

func NewBookingService(deps Dependencies, cfg config.SchedulerConfig, logger *zerolog.Logger) *BookingService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &BookingService{
		store:           deps.Store,
		graph:           deps.Graph,
		capacity:        deps.Capacity,
		state:           deps.State,
		eventBus:        deps.Events,
		hours:           deps.Hours,
		loc:             deps.Location,
		pendingTTL:      cfg.PendingTTL,
		responseTTL:     cfg.ResponseTTL,
		maxPersons:      cfg.MaxPersons,
		guestRateLimit:  cfg.GuestRateLimit,
		guestRateWindow: cfg.GuestRateWindow,
		retry: worker.RetryPolicy{
			MaxRetries:    cfg.LockRetries,
			InitialDelay:  50 * time.Millisecond,
			MaxDelay:      time.Second,
			BackoffFactor: 2,
		},
		now:    time.Now,
		logger: logger,
	}
	if s.pendingTTL <= 0 {
		s.pendingTTL = models.DefaultPendingTTL
	}
	if s.responseTTL <= 0 {
		s.responseTTL = models.DefaultResponseTTL
	}
	if s.guestRateWindow <= 0 {
		s.guestRateWindow = time.Minute
	}
	return s
}

// FindBooking answers a guest request. It never returns nil.
func (s *BookingService) FindBooking(ctx context.Context, req *models.BookingRequest) *models.BookingResponse {
	started := time.Now()
	defer func() { metrics.ObserveFind(time.Since(started)) }()

	// сетка, часы работы и хранилище живут в часовом поясе ресторана
	if s.loc != nil && !req.StartTime.IsZero() {
		req.StartTime = req.StartTime.In(s.loc)
	}

	if err := req.Validate(s.maxPersons); err != nil {
		return models.NewErrorResponse(req.CorrelationID, req.RequestID, models.CodeInvalidRequest, err.Error())
	}

	// Повторная доставка того же запроса получает сохраненный ответ
	if prev := s.storedResponse(ctx, req.CorrelationID); prev != nil {
		s.logger.Debug().Str("correlation_id", req.CorrelationID).Msg("replaying stored response")
		return prev
	}

	if !s.allowGuest(ctx, req.GuestID) {
		return models.NewErrorResponse(req.CorrelationID, req.RequestID, models.CodeRateLimited, "too many booking requests")
	}

	resp := s.findBooking(ctx, req)
	if resp.ErrorCode() != models.CodeLockTimeout {
		s.remember(ctx, resp)
	}
	return resp
}

func (s *BookingService) findBooking(ctx context.Context, req *models.BookingRequest) *models.BookingResponse {
	log := s.logger.With().Str("correlation_id", req.CorrelationID).Int64("request_id", req.RequestID).Logger()

	tier, err := s.capacity.Resolve(req.Persons)
	if err != nil {
		if errors.Is(err, capacity.ErrCapacityExceeded) {
			metrics.IncAllocation("manager_required", 0)
			s.publishEvent(events.EventManagerRequired, events.BookingEventPayload{
				CorrelationID: req.CorrelationID,
				GuestID:       req.GuestID,
				Persons:       req.Persons,
				StartTime:     req.StartTime,
				EndTime:       req.EndTime(),
				Notes:         req.Notes,
			})
			return models.NewErrorResponse(req.CorrelationID, req.RequestID, models.CodeCapacityExceeded, err.Error())
		}
		log.Error().Err(err).Msg("resolve capacity")
		return s.internalError(req)
	}

	outcome, err := s.searchWithRetry(ctx, req, tier)
	if err != nil {
		if errors.Is(err, timegraph.ErrLockTimeout) {
			return models.NewErrorResponse(req.CorrelationID, req.RequestID, models.CodeLockTimeout, "schedule is busy, try again")
		}
		log.Error().Err(err).Msg("search time graph")
		return s.internalError(req)
	}

	metrics.IncAllocation(outcome.Kind.String(), tier)

	switch outcome.Kind {
	case timegraph.Success:
		return s.book(ctx, req, outcome.Match)
	case timegraph.Suggested:
		return s.offer(ctx, req, outcome.Suggestions)
	default:
		return s.waitlist(ctx, req)
	}
}

func (s *BookingService) searchWithRetry(ctx context.Context, req *models.BookingRequest, tier int) (*timegraph.Outcome, error) {
	var outcome *timegraph.Outcome
	attempts := 0
	err := s.retry.Do(ctx, isLockTimeout, func() error {
		attempts++
		var err error
		outcome, err = s.graph.FindBooking(ctx, req.StartTime, req.Span(), tier, req.CorrelationID)
		return err
	})
	if attempts > 1 {
		s.logger.Debug().Str("correlation_id", req.CorrelationID).Int("attempts", attempts).Err(err).Msg("day lock was busy")
	}
	return outcome, err
}

func isLockTimeout(err error) bool {
	return errors.Is(err, timegraph.ErrLockTimeout)
}

func (s *BookingService) book(ctx context.Context, req *models.BookingRequest, m *timegraph.Match) *models.BookingResponse {
	booking := s.newBooking(req, m.Claim, models.StatusConfirmed, nil)
	if err := s.store.SaveBooking(ctx, booking); err != nil {
		s.logger.Error().Err(err).Str("correlation_id", req.CorrelationID).Msg("save booking")
		s.releaseClaims(ctx, m.Claim)
		return s.internalError(req)
	}
	if err := s.graph.Assign(ctx, m.Claim, booking.ID); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("assign booking to time graph")
		s.discard(ctx, []int64{booking.ID}, m.Claim)
		return s.internalError(req)
	}

	s.publishEvent(events.EventBookingConfirmed, bookingPayload(booking))
	return models.NewSuccessResponse(req.CorrelationID, req.RequestID, models.SuccessBody{
		BookingID:   booking.ID,
		TableNumber: booking.TableNumber,
		StartTime:   booking.StartTime,
		EndTime:     booking.EndTime,
	})
}

func (s *BookingService) offer(ctx context.Context, req *models.BookingRequest, suggestions []timegraph.Suggestion) *models.BookingResponse {
	expires := s.now().Add(s.pendingTTL)
	slots := make([]models.Slot, 0, len(suggestions))
	ids := make([]int64, 0, len(suggestions))

	for i, sug := range suggestions {
		booking := s.newBooking(req, sug.Claim, models.StatusPending, &expires)
		err := s.store.SaveBooking(ctx, booking)
		if err == nil {
			ids = append(ids, booking.ID)
			err = s.graph.Assign(ctx, sug.Claim, booking.ID)
		}
		if err != nil {
			s.logger.Error().Err(err).Str("correlation_id", req.CorrelationID).Msg("persist suggestion")
			rest := make([]timegraph.Claim, 0, len(suggestions)-i)
			for _, r := range suggestions[i:] {
				rest = append(rest, r.Claim)
			}
			s.discard(ctx, ids, rest...)
			return s.internalError(req)
		}
		slots = append(slots, models.Slot{BookingID: booking.ID, StartTime: booking.StartTime, EndTime: booking.EndTime})
	}

	s.publishEvent(events.EventSuggestionsOffered, events.BookingEventPayload{
		BookingIDs:    ids,
		CorrelationID: req.CorrelationID,
		GuestID:       req.GuestID,
		Persons:       req.Persons,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime(),
		Status:        models.StatusPending,
	})
	return models.NewSuggestedResponse(req.CorrelationID, req.RequestID, slots, expires)
}

func (s *BookingService) waitlist(ctx context.Context, req *models.BookingRequest) *models.BookingResponse {
	var position int64
	if s.state != nil {
		day := req.StartTime
		if s.hours != nil {
			day = s.hours.OperatingDay(req.StartTime)
		}
		pos, err := s.state.NextWaitlistPosition(ctx, day)
		if err != nil {
			s.logger.Error().Err(err).Str("correlation_id", req.CorrelationID).Msg("waitlist position")
			return s.internalError(req)
		}
		position = pos
	}

	s.publishEvent(events.EventBookingWaitlisted, events.BookingEventPayload{
		CorrelationID: req.CorrelationID,
		GuestID:       req.GuestID,
		Persons:       req.Persons,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime(),
		QueuePosition: position,
	})
	return models.NewWaitlistResponse(req.CorrelationID, req.RequestID, position)
}

// Confirm picks one suggested slot and drops the others offered under the same correlation id.
func (s *BookingService) Confirm(ctx context.Context, c *models.SlotConfirmation) *models.BookingResponse {
	if err := c.Validate(); err != nil {
		return models.NewErrorResponse(c.CorrelationID, 0, models.CodeInvalidRequest, err.Error())
	}

	chosen, err := s.store.GetBooking(ctx, c.Slot.BookingID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.NewErrorResponse(c.CorrelationID, 0, models.CodeConfirmationExpired, ErrConfirmationExpired.Error())
		}
		s.logger.Error().Err(err).Int64("booking_id", c.Slot.BookingID).Msg("load chosen booking")
		return models.NewErrorResponse(c.CorrelationID, 0, models.CodeInternal, "internal error")
	}
	if chosen.CorrelationID != c.CorrelationID {
		return models.NewErrorResponse(c.CorrelationID, 0, models.CodeNotFound,
			fmt.Sprintf("booking %d was not offered for this request", chosen.ID))
	}

	rejected, err := s.rejectedFor(ctx, c, chosen.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("correlation_id", c.CorrelationID).Msg("list pending suggestions")
		return models.NewErrorResponse(c.CorrelationID, 0, models.CodeInternal, "internal error")
	}

	if err := s.ConfirmSlot(ctx, chosen.ID, rejected); err != nil {
		if errors.Is(err, ErrConfirmationExpired) {
			return models.NewErrorResponse(c.CorrelationID, 0, models.CodeConfirmationExpired, err.Error())
		}
		s.logger.Error().Err(err).Int64("booking_id", chosen.ID).Msg("confirm slot")
		return models.NewErrorResponse(c.CorrelationID, 0, models.CodeInternal, "internal error")
	}

	return models.NewSuccessResponse(c.CorrelationID, 0, models.SuccessBody{
		BookingID:   chosen.ID,
		TableNumber: chosen.TableNumber,
		StartTime:   chosen.StartTime,
		EndTime:     chosen.EndTime,
	})
}

// rejectedFor returns the other pending holds of the request. An explicit list is
// narrowed to those holds so foreign bookings are never touched.
func (s *BookingService) rejectedFor(ctx context.Context, c *models.SlotConfirmation, chosenID int64) ([]int64, error) {
	pending, err := s.store.ListPendingByCorrelation(ctx, c.CorrelationID)
	if err != nil {
		return nil, err
	}

	explicit := make(map[int64]struct{}, len(c.RejectedIDs))
	for _, id := range c.RejectedIDs {
		explicit[id] = struct{}{}
	}

	var ids []int64
	for _, b := range pending {
		if b.ID == chosenID {
			continue
		}
		if len(explicit) > 0 {
			if _, ok := explicit[b.ID]; !ok {
				continue
			}
		}
		ids = append(ids, b.ID)
	}
	return ids, nil
}

// ConfirmSlot confirms chosenID and deletes rejectedIDs, releasing their slots.
// Callers are responsible for rejectedIDs being holds of the same request.
func (s *BookingService) ConfirmSlot(ctx context.Context, chosenID int64, rejectedIDs []int64) error {
	if err := s.store.ConfirmBooking(ctx, chosenID, s.now()); err != nil {
		if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrExpired) {
			return fmt.Errorf("%w: booking %d", ErrConfirmationExpired, chosenID)
		}
		return err
	}

	chosen, err := s.store.GetBooking(ctx, chosenID)
	if err != nil {
		return err
	}
	s.publishEvent(events.EventSuggestionConfirmed, bookingPayload(chosen))

	if len(rejectedIDs) == 0 {
		return nil
	}

	if _, err := s.store.DeleteBookings(ctx, rejectedIDs); err != nil {
		return fmt.Errorf("failed to delete rejected suggestions: %w", err)
	}
	released, err := s.graph.UnreserveByBookingID(ctx, rejectedIDs, chosen.StartTime)
	if err != nil {
		// бронь уже подтверждена, слоты освободит следующая перестройка графа
		s.logger.Error().Err(err).Ints64("booking_ids", rejectedIDs).Msg("release rejected suggestions")
	}
	metrics.AddReleased("rejected", released)

	s.publishEvent(events.EventSuggestionRejected, events.BookingEventPayload{
		BookingIDs:    rejectedIDs,
		CorrelationID: chosen.CorrelationID,
		GuestID:       chosen.GuestID,
	})
	return nil
}

// SweepExpired deletes pending holds past their expiry and frees their slots.
// Returns the number of bookings removed.
func (s *BookingService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.store.DeleteExpiredPending(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	type group struct {
		ref time.Time
		ids []int64
	}
	var order []string
	groups := make(map[string]*group)
	ids := make([]int64, 0, len(expired))
	for _, b := range expired {
		ids = append(ids, b.ID)
		day := b.StartTime
		if s.hours != nil {
			day = s.hours.OperatingDay(b.StartTime)
		}
		key := day.Format(time.DateOnly)
		g, ok := groups[key]
		if !ok {
			g = &group{ref: b.StartTime}
			groups[key] = g
			order = append(order, key)
		}
		g.ids = append(g.ids, b.ID)
	}

	var errs []error
	released := 0
	for _, key := range order {
		g := groups[key]
		n, err := s.graph.UnreserveByBookingID(ctx, g.ids, g.ref)
		if err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", key, err))
			continue
		}
		released += n
	}
	metrics.AddReleased("expired", released)

	s.logger.Info().Int("bookings", len(expired)).Int("slots", released).Msg("expired holds swept")
	s.publishEvent(events.EventPendingExpired, events.BookingEventPayload{BookingIDs: ids, Status: models.StatusPending})

	return len(expired), errors.Join(errs...)
}

// Cleanup is the nightly job: finished bookings are deleted and the graph is rebuilt.
func (s *BookingService) Cleanup(ctx context.Context) error {
	deleted, err := s.store.DeleteFinishedBefore(ctx, s.now())
	if err != nil {
		return err
	}
	s.logger.Info().Int64("deleted", deleted).Msg("finished bookings removed")
	return s.Refresh(ctx)
}

// Refresh reloads capacities and rebuilds the time graph from the store.
func (s *BookingService) Refresh(ctx context.Context) error {
	if err := s.capacity.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh capacities: %w", err)
	}
	if err := s.graph.FillIn(ctx); err != nil {
		return err
	}
	s.publishEvent(events.EventGraphRebuilt, events.BookingEventPayload{})
	return nil
}

// Schedule is a read-only copy of one operating day.
func (s *BookingService) Schedule(ctx context.Context, date time.Time) (*timegraph.DaySchedule, error) {
	return s.graph.Snapshot(ctx, date)
}

func (s *BookingService) newBooking(req *models.BookingRequest, c timegraph.Claim, status string, expires *time.Time) *models.Booking {
	return &models.Booking{
		GuestID:       req.GuestID,
		TableNumber:   c.Table,
		StartTime:     c.StartTime(),
		EndTime:       c.EndTime(),
		Status:        status,
		Persons:       req.Persons,
		Notes:         req.Notes,
		CorrelationID: req.CorrelationID,
		CreatedAt:     s.now(),
		ExpiresAt:     expires,
	}
}

// discard undoes a partially persisted outcome.
func (s *BookingService) discard(ctx context.Context, ids []int64, claims ...timegraph.Claim) {
	s.releaseClaims(ctx, claims...)
	if len(ids) == 0 {
		return
	}
	if _, err := s.store.DeleteBookings(ctx, ids); err != nil {
		s.logger.Error().Err(err).Ints64("booking_ids", ids).Msg("delete unfinished bookings")
	}
	if len(claims) > 0 {
		if _, err := s.graph.UnreserveByBookingID(ctx, ids, claims[0].StartTime()); err != nil {
			s.logger.Error().Err(err).Ints64("booking_ids", ids).Msg("release unfinished bookings")
		}
	}
}

func (s *BookingService) releaseClaims(ctx context.Context, claims ...timegraph.Claim) {
	for _, c := range claims {
		if err := s.graph.Release(ctx, c); err != nil {
			s.logger.Error().Err(err).Int("table", c.Table).Msg("release claim")
		}
	}
}

func (s *BookingService) storedResponse(ctx context.Context, correlationID string) *models.BookingResponse {
	if s.state == nil || correlationID == "" {
		return nil
	}
	resp, err := s.state.GetResponse(ctx, correlationID)
	if err != nil {
		s.logger.Warn().Err(err).Str("correlation_id", correlationID).Msg("load stored response")
		return nil
	}
	return resp
}

func (s *BookingService) remember(ctx context.Context, resp *models.BookingResponse) {
	if s.state == nil || resp.CorrelationID == "" {
		return
	}
	if err := s.state.SaveResponse(ctx, resp, s.responseTTL); err != nil {
		s.logger.Warn().Err(err).Str("correlation_id", resp.CorrelationID).Msg("store response")
	}
}

func (s *BookingService) allowGuest(ctx context.Context, guestID int64) bool {
	if s.state == nil || s.guestRateLimit <= 0 || guestID == 0 {
		return true
	}
	allowed, err := s.state.CheckRateLimit(ctx, guestID, s.guestRateLimit, s.guestRateWindow)
	if err != nil {
		// лимит не должен блокировать бронирование
		s.logger.Warn().Err(err).Int64("guest_id", guestID).Msg("rate limit check failed")
		return true
	}
	return allowed
}

func (s *BookingService) internalError(req *models.BookingRequest) *models.BookingResponse {
	return models.NewErrorResponse(req.CorrelationID, req.RequestID, models.CodeInternal, "internal error")
}

func bookingPayload(b *models.Booking) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:     b.ID,
		CorrelationID: b.CorrelationID,
		GuestID:       b.GuestID,
		TableNumber:   b.TableNumber,
		Persons:       b.Persons,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		Status:        b.Status,
		Notes:         b.Notes,
	}
}

func (s *BookingService) publishEvent(eventType string, payload events.BookingEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", payload.BookingID).Msg("publish event error")
	}
}
