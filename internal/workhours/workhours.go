// Package workhours answers when an operating day opens and closes.
package workhours

import (
	"fmt"
	"time"

	"restobook/internal/config"
	"restobook/internal/models"
)

// Oracle is configured once and never mutated.
type Oracle struct {
	open         models.Clock
	closeWeekday models.Clock
	closeWeekend models.Clock
}

func New(open, closeWeekday, closeWeekend models.Clock) *Oracle {
	return &Oracle{open: open, closeWeekday: closeWeekday, closeWeekend: closeWeekend}
}

// FromConfig parses the "HH:MM" values of the worktime section.
func FromConfig(cfg config.WorktimeConfig) (*Oracle, error) {
	open, err := models.ParseClock(cfg.OpenTime)
	if err != nil {
		return nil, fmt.Errorf("worktime.open_time: %w", err)
	}
	weekday, err := models.ParseClock(cfg.CloseWeekdayTime)
	if err != nil {
		return nil, fmt.Errorf("worktime.close_weekday_time: %w", err)
	}
	weekend, err := models.ParseClock(cfg.CloseWeekendTime)
	if err != nil {
		return nil, fmt.Errorf("worktime.close_weekend_time: %w", err)
	}
	return New(open, weekday, weekend), nil
}

func (o *Oracle) OpenClock() models.Clock { return o.open }

// OpenAt returns the opening instant of the session t belongs to.
func (o *Oracle) OpenAt(t time.Time) time.Time {
	open := o.open.On(t)
	if open.After(t) {
		// between midnight and opening: the session started yesterday
		return o.open.On(t.AddDate(0, 0, -1))
	}
	return open
}

// CloseAt returns the closing instant of the session t belongs to.
func (o *Oracle) CloseAt(t time.Time) time.Time {
	if o.open.After(models.ClockOf(t)) {
		closing := o.closeFor(t.AddDate(0, 0, -1).Weekday())
		return closing.On(t)
	}

	closing := o.closeFor(t.Weekday())
	if closing.Before(o.open) {
		return closing.On(t.AddDate(0, 0, 1))
	}
	return closing.On(t)
}

// OperatingDay is the calendar date (at midnight) on which t's session opened.
func (o *Oracle) OperatingDay(t time.Time) time.Time {
	open := o.OpenAt(t)
	y, m, d := open.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, open.Location())
}

// closeFor: пятница и суббота закрываются по выходному расписанию
func (o *Oracle) closeFor(day time.Weekday) models.Clock {
	if day == time.Friday || day == time.Saturday {
		return o.closeWeekend
	}
	return o.closeWeekday
}
