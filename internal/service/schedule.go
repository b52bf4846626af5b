package service

import (
	"time"

	"github.com/mkorolev/qrlink/internal/models"
)

// ScheduleReason says why a link is (in)active at an instant.
type ScheduleReason string

const (
	ReasonActive    ScheduleReason = "active"
	ReasonEarly     ScheduleReason = "early"
	ReasonEnded     ScheduleReason = "ended"
	ReasonRecurring ScheduleReason = "recurring"
)

type ScheduleStatus struct {
	Active bool
	Reason ScheduleReason
}

// EvaluateSchedule decides whether a link is active at now. The one-time
// window takes precedence; only when it does not exclude the visit is the
// recurring rule consulted. Pure function, safe under any concurrency.
func EvaluateSchedule(now time.Time, activeFrom, activeUntil *time.Time, rule *models.ScheduleRule, timezone string) ScheduleStatus {
	if activeFrom != nil && now.Before(*activeFrom) {
		return ScheduleStatus{Active: false, Reason: ReasonEarly}
	}
	if activeUntil != nil && now.After(*activeUntil) {
		return ScheduleStatus{Active: false, Reason: ReasonEnded}
	}

	if rule == nil {
		return ScheduleStatus{Active: true, Reason: ReasonActive}
	}

	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if rule.Type == models.ScheduleWeekly {
		allowed := false
		for _, day := range rule.DaysOfWeek {
			if local.Weekday() == day {
				allowed = true
				break
			}
		}
		if !allowed {
			return ScheduleStatus{Active: false, Reason: ReasonRecurring}
		}
	}

	if inMinuteWindow(minute, rule.StartMinute, rule.EndMinute) {
		return ScheduleStatus{Active: true, Reason: ReasonActive}
	}

	return ScheduleStatus{Active: false, Reason: ReasonRecurring}
}

// inMinuteWindow tests current against the half-open window [start, end).
// start > end means the window crosses midnight and is split in two.
func inMinuteWindow(current, start, end int) bool {
	if start > end {
		return current >= start || current < end
	}
	return current >= start && current < end
}
