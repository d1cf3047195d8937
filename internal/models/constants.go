package models

import "time"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

const (
	// SlotInterval шаг сетки расписания
	SlotInterval = 30 * time.Minute

	// MinBookingDuration минимальная длительность брони
	MinBookingDuration = 2 * time.Hour

	// DefaultMaxPersons максимальный размер компании для автоматического бронирования
	DefaultMaxPersons = 8

	// DefaultPendingTTL время жизни предложенных слотов
	DefaultPendingTTL = 10 * time.Minute

	// DefaultMaxSuggestions максимум предложений в одном ответе
	DefaultMaxSuggestions = 4

	// DefaultMinSuggestionSlots минимальная длина укороченного предложения
	DefaultMinSuggestionSlots = 4

	// DefaultSuggestionWindow расширение окна поиска предложений
	DefaultSuggestionWindow = time.Hour

	// DefaultLockTimeout ожидание блокировки дня
	DefaultLockTimeout = time.Second

	// DefaultReplyTimeout ожидание ответа планировщика
	DefaultReplyTimeout = 30 * time.Second

	// DefaultResponseTTL время хранения ответа по correlation id
	DefaultResponseTTL = 15 * time.Minute
)
