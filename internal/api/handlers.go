package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"restobook/internal/broker"
	"restobook/internal/models"
	"restobook/internal/timegraph"
)

const maxBodyBytes = 1 << 20

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// повторная отправка с тем же request id получает тот же ответ
	if req.CorrelationID == "" {
		req.CorrelationID = r.Header.Get(requestIDHeader)
	}

	resp, err := s.opts.Gateway.RequestBooking(r.Context(), &req)
	s.reply(w, r, req.CorrelationID, resp, err)
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var conf models.SlotConfirmation
	if err := decodeBody(w, r, &conf); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.opts.Gateway.ConfirmSlot(r.Context(), &conf)
	s.reply(w, r, conf.CorrelationID, resp, err)
}

func (s *HTTPServer) reply(w http.ResponseWriter, r *http.Request, correlationID string, resp *models.BookingResponse, err error) {
	if err != nil {
		statusCode := http.StatusBadGateway
		if errors.Is(err, broker.ErrReplyTimeout) || errors.Is(err, context.DeadlineExceeded) {
			statusCode = http.StatusGatewayTimeout
		}
		s.logger.Error().Err(err).
			Str("request_id", r.Header.Get(requestIDHeader)).
			Str("correlation_id", correlationID).
			Msg("scheduler call failed")
		writeError(w, statusCode, "scheduler unavailable")
		return
	}
	writeJSON(w, statusFor(resp), resp)
}

// statusFor maps a scheduler answer onto an HTTP status.
func statusFor(resp *models.BookingResponse) int {
	switch resp.Type {
	case models.ResponseSuccess:
		return http.StatusOK
	case models.ResponseSuggested, models.ResponseWaitlist:
		return http.StatusAccepted
	}

	switch resp.ErrorCode() {
	case models.CodeInvalidRequest:
		return http.StatusBadRequest
	case models.CodeCapacityExceeded:
		return http.StatusUnprocessableEntity
	case models.CodeNotFound:
		return http.StatusNotFound
	case models.CodeConfirmationExpired:
		return http.StatusGone
	case models.CodeRateLimited:
		return http.StatusTooManyRequests
	case models.CodeLockTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type slotView struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Holder    int64  `json:"holder,omitempty"`
}

type tableView struct {
	TableNumber int        `json:"table_number"`
	Capacity    int        `json:"capacity"`
	Slots       []slotView `json:"slots"`
}

type scheduleView struct {
	Date   string      `json:"date"`
	Open   time.Time   `json:"open"`
	Close  time.Time   `json:"close"`
	Tables []tableView `json:"tables"`
}

func newScheduleView(d *timegraph.DaySchedule) scheduleView {
	out := scheduleView{
		Date:   d.Date.Format(time.DateOnly),
		Open:   d.Open,
		Close:  d.Close,
		Tables: make([]tableView, 0, len(d.Tables)),
	}
	for _, t := range d.Tables {
		tv := tableView{TableNumber: t.TableNumber, Capacity: t.Capacity, Slots: make([]slotView, len(t.Slots))}
		for i, s := range t.Slots {
			tv.Slots[i] = slotView{Time: s.Time.String(), Available: s.Available, Holder: s.Holder}
		}
		out.Tables = append(out.Tables, tv)
	}
	return out
}

func (s *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	date, err := s.parseDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	schedule, err := s.opts.Schedule.Schedule(r.Context(), date)
	if err != nil {
		s.scheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newScheduleView(schedule))
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	date, err := s.parseDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := s.opts.Exporter.BuildDay(r.Context(), date)
	if err != nil {
		s.scheduleError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=schedule_%s.xlsx", date.Format(time.DateOnly)))
	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("write workbook")
	}
}

func (s *HTTPServer) scheduleError(w http.ResponseWriter, err error) {
	if errors.Is(err, timegraph.ErrLockTimeout) {
		writeError(w, http.StatusServiceUnavailable, "schedule is busy, retry later")
		return
	}
	s.logger.Error().Err(err).Msg("read schedule")
	writeError(w, http.StatusInternalServerError, "failed to read schedule")
}

func (s *HTTPServer) parseDate(r *http.Request) (time.Time, error) {
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		return time.Time{}, errors.New("date is required")
	}
	date, err := time.ParseInLocation(time.DateOnly, dateStr, s.opts.Location)
	if err != nil {
		return time.Time{}, errors.New("invalid date format; expected YYYY-MM-DD")
	}
	return date, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
