package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"restobook/internal/broker"
	"restobook/internal/config"
	"restobook/internal/export"
	"restobook/internal/models"
	"restobook/internal/timegraph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) RequestBooking(ctx context.Context, req *models.BookingRequest) (*models.BookingResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*models.BookingResponse)
	return resp, args.Error(1)
}

func (m *mockGateway) ConfirmSlot(ctx context.Context, conf *models.SlotConfirmation) (*models.BookingResponse, error) {
	args := m.Called(ctx, conf)
	resp, _ := args.Get(0).(*models.BookingResponse)
	return resp, args.Error(1)
}

type stubSchedule struct {
	schedule *timegraph.DaySchedule
	err      error
	asked    time.Time
}

func (s *stubSchedule) Schedule(_ context.Context, date time.Time) (*timegraph.DaySchedule, error) {
	s.asked = date
	return s.schedule, s.err
}

var testDay = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func testSchedule() *timegraph.DaySchedule {
	return &timegraph.DaySchedule{
		Date:  testDay,
		Open:  testDay.Add(10 * time.Hour),
		Close: testDay.Add(23 * time.Hour),
		Tables: []timegraph.TableSchedule{{
			TableNumber: 3,
			Capacity:    4,
			Slots: []timegraph.SlotState{
				{Time: models.NewClock(10, 0), Available: true},
				{Time: models.NewClock(10, 30), Holder: 42},
			},
		}},
	}
}

func newTestServer(cfg config.APIConfig, opts Options) *HTTPServer {
	return NewHTTPServer(cfg, opts, nil)
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(config.APIConfig{}, Options{})
	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestBookingRequest(t *testing.T) {
	gw := new(mockGateway)
	srv := newTestServer(config.APIConfig{}, Options{Gateway: gw})

	start := testDay.Add(12 * time.Hour)
	gw.On("RequestBooking", mock.Anything, mock.MatchedBy(func(r *models.BookingRequest) bool {
		return r.CorrelationID == "req-1" && r.Persons == 2 && r.StartTime.Equal(start)
	})).Return(models.NewSuccessResponse("req-1", 0, models.SuccessBody{
		BookingID: 7, TableNumber: 1, StartTime: start, EndTime: start.Add(2 * time.Hour),
	}), nil).Once()

	body := `{"start_time":"2025-03-14T12:00:00Z","duration":120,"persons":2,"guest_id":5}`
	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/bookings", body, requestIDHeader, "req-1")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))

	var resp models.BookingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.ResponseSuccess, resp.Type)
	assert.Equal(t, int64(7), resp.Success.BookingID)
	gw.AssertExpectations(t)
}

func TestBookingRequestKeepsCorrelationID(t *testing.T) {
	gw := new(mockGateway)
	srv := newTestServer(config.APIConfig{}, Options{Gateway: gw})

	gw.On("RequestBooking", mock.Anything, mock.MatchedBy(func(r *models.BookingRequest) bool {
		return r.CorrelationID == "mine"
	})).Return(models.NewWaitlistResponse("mine", 0, 3), nil).Once()

	body := `{"correlation_id":"mine","start_time":"2025-03-14T12:00:00Z","duration":120,"persons":2}`
	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/bookings", body)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queue_position":3`)
	gw.AssertExpectations(t)
}

func TestBookingRequestBadBody(t *testing.T) {
	gw := new(mockGateway)
	srv := newTestServer(config.APIConfig{}, Options{Gateway: gw})

	for name, body := range map[string]string{
		"NotJSON":      `{`,
		"UnknownField": `{"persons":2,"table":4}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/bookings", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	gw.AssertNotCalled(t, "RequestBooking", mock.Anything, mock.Anything)
}

func TestBookingMethodNotAllowed(t *testing.T) {
	srv := newTestServer(config.APIConfig{}, Options{Gateway: new(mockGateway)})
	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/bookings", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGatewayFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"ReplyTimeout", broker.ErrReplyTimeout, http.StatusGatewayTimeout},
		{"Deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"Other", errors.New("channel closed"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := new(mockGateway)
			gw.On("ConfirmSlot", mock.Anything, mock.Anything).Return(nil, tc.err).Once()
			srv := newTestServer(config.APIConfig{}, Options{Gateway: gw})

			rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/bookings/confirm",
				`{"correlation_id":"c","slot":{"booking_id":3}}`)
			assert.Equal(t, tc.want, rec.Code)
			assert.Contains(t, rec.Body.String(), "scheduler unavailable")
		})
	}
}

func TestConfirm(t *testing.T) {
	gw := new(mockGateway)
	srv := newTestServer(config.APIConfig{}, Options{Gateway: gw})

	gw.On("ConfirmSlot", mock.Anything, mock.MatchedBy(func(c *models.SlotConfirmation) bool {
		return c.CorrelationID == "c" && c.Slot.BookingID == 3 && len(c.RejectedIDs) == 1
	})).Return(models.NewErrorResponse("c", 0, models.CodeConfirmationExpired, "expired"), nil).Once()

	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/bookings/confirm",
		`{"correlation_id":"c","slot":{"booking_id":3},"rejected_ids":[4]}`)
	assert.Equal(t, http.StatusGone, rec.Code)
	gw.AssertExpectations(t)
}

func TestStatusFor(t *testing.T) {
	cases := map[string]struct {
		resp *models.BookingResponse
		want int
	}{
		"Success":     {models.NewSuccessResponse("", 0, models.SuccessBody{}), http.StatusOK},
		"Suggested":   {models.NewSuggestedResponse("", 0, nil, time.Time{}), http.StatusAccepted},
		"Waitlist":    {models.NewWaitlistResponse("", 0, 1), http.StatusAccepted},
		"Invalid":     {models.NewErrorResponse("", 0, models.CodeInvalidRequest, ""), http.StatusBadRequest},
		"Capacity":    {models.NewErrorResponse("", 0, models.CodeCapacityExceeded, ""), http.StatusUnprocessableEntity},
		"NotFound":    {models.NewErrorResponse("", 0, models.CodeNotFound, ""), http.StatusNotFound},
		"Expired":     {models.NewErrorResponse("", 0, models.CodeConfirmationExpired, ""), http.StatusGone},
		"RateLimited": {models.NewErrorResponse("", 0, models.CodeRateLimited, ""), http.StatusTooManyRequests},
		"LockTimeout": {models.NewErrorResponse("", 0, models.CodeLockTimeout, ""), http.StatusServiceUnavailable},
		"Internal":    {models.NewErrorResponse("", 0, models.CodeInternal, ""), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.resp))
		})
	}
}

func TestSchedule(t *testing.T) {
	reader := &stubSchedule{schedule: testSchedule()}
	srv := newTestServer(config.APIConfig{}, Options{Schedule: reader})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/schedule?date=2025-03-14", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, testDay, reader.asked)

	var body scheduleView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "2025-03-14", body.Date)
	require.Len(t, body.Tables, 1)
	assert.Equal(t, 3, body.Tables[0].TableNumber)
	assert.Equal(t, []slotView{
		{Time: "10:00", Available: true},
		{Time: "10:30", Holder: 42},
	}, body.Tables[0].Slots)
}

func TestScheduleErrors(t *testing.T) {
	reader := &stubSchedule{err: timegraph.ErrLockTimeout}
	srv := newTestServer(config.APIConfig{}, Options{Schedule: reader})

	assert.Equal(t, http.StatusBadRequest, do(t, srv.Handler(), http.MethodGet, "/api/v1/schedule", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv.Handler(), http.MethodGet, "/api/v1/schedule?date=14.03.2025", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv.Handler(), http.MethodGet, "/api/v1/schedule?date=2025-03-14", "").Code)

	reader.err = errors.New("boom")
	assert.Equal(t, http.StatusInternalServerError, do(t, srv.Handler(), http.MethodGet, "/api/v1/schedule?date=2025-03-14", "").Code)
}

func TestScheduleExport(t *testing.T) {
	reader := &stubSchedule{schedule: testSchedule()}
	srv := newTestServer(config.APIConfig{}, Options{Exporter: export.New(reader, t.TempDir(), nil)})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/schedule/export?date=2025-03-14", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "schedule_2025-03-14.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(f.GetSheetList()[0], "C3")
	require.NoError(t, err)
	assert.Equal(t, "42", v)
}

func TestRoutesFollowOptions(t *testing.T) {
	srv := newTestServer(config.APIConfig{}, Options{})

	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodPost, "/api/v1/bookings", "{}").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodGet, "/api/v1/schedule?date=2025-03-14", "").Code)
}

type panickingGateway struct{}

func (panickingGateway) RequestBooking(context.Context, *models.BookingRequest) (*models.BookingResponse, error) {
	panic("broken gateway")
}

func (panickingGateway) ConfirmSlot(context.Context, *models.SlotConfirmation) (*models.BookingResponse, error) {
	panic("broken gateway")
}

func TestHandlerPanicReturnsInternalError(t *testing.T) {
	srv := newTestServer(config.APIConfig{}, Options{Gateway: panickingGateway{}})

	body := `{"start_time":"2025-03-14T12:00:00Z","duration":120,"persons":2}`
	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/bookings", body, requestIDHeader, "req-p")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
	assert.Equal(t, "req-p", rec.Header().Get(requestIDHeader))

	// the server keeps serving
	rec = do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
