package models

import "time"

type ResponseType string

const (
	ResponseSuccess   ResponseType = "SUCCESS"
	ResponseSuggested ResponseType = "SUGGESTED"
	ResponseWaitlist  ResponseType = "WAITLIST"
	ResponseError     ResponseType = "ERROR"
)

const (
	CodeInvalidRequest      = "invalid_request"
	CodeCapacityExceeded    = "capacity_exceeded"
	CodeLockTimeout         = "lock_timeout"
	CodeConfirmationExpired = "confirmation_expired"
	CodeNotFound            = "not_found"
	CodeRateLimited         = "rate_limited"
	CodeInternal            = "internal"
)

// BookingResponse is a tagged union: Type selects which of the variant fields is set.
type BookingResponse struct {
	Type          ResponseType `json:"type"`
	CorrelationID string       `json:"correlation_id"`
	RequestID     int64        `json:"request_id"`

	Success   *SuccessBody   `json:"success,omitempty"`
	Suggested *SuggestedBody `json:"suggested,omitempty"`
	Waitlist  *WaitlistBody  `json:"waitlist,omitempty"`
	Error     *ErrorBody     `json:"error,omitempty"`
}

type SuccessBody struct {
	BookingID   int64     `json:"booking_id"`
	TableNumber int       `json:"table_number"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

type SuggestedBody struct {
	Slots   []Slot    `json:"slots"`
	Expires time.Time `json:"expires"`
}

type WaitlistBody struct {
	QueuePosition int64 `json:"queue_position"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewSuccessResponse(correlationID string, requestID int64, body SuccessBody) *BookingResponse {
	return &BookingResponse{Type: ResponseSuccess, CorrelationID: correlationID, RequestID: requestID, Success: &body}
}

func NewSuggestedResponse(correlationID string, requestID int64, slots []Slot, expires time.Time) *BookingResponse {
	return &BookingResponse{
		Type:          ResponseSuggested,
		CorrelationID: correlationID,
		RequestID:     requestID,
		Suggested:     &SuggestedBody{Slots: slots, Expires: expires},
	}
}

func NewWaitlistResponse(correlationID string, requestID int64, position int64) *BookingResponse {
	return &BookingResponse{
		Type:          ResponseWaitlist,
		CorrelationID: correlationID,
		RequestID:     requestID,
		Waitlist:      &WaitlistBody{QueuePosition: position},
	}
}

func NewErrorResponse(correlationID string, requestID int64, code, message string) *BookingResponse {
	return &BookingResponse{
		Type:          ResponseError,
		CorrelationID: correlationID,
		RequestID:     requestID,
		Error:         &ErrorBody{Code: code, Message: message},
	}
}

// ErrorCode returns the error code, or an empty string for non-error responses.
func (r *BookingResponse) ErrorCode() string {
	if r == nil || r.Error == nil {
		return ""
	}
	return r.Error.Code
}
