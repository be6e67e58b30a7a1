package domain

import "time"

// DateKeyLayout is the calendar-day format of CheckIn.DateKey
const DateKeyLayout = "2006-01-02"

// CheckIn represents a user visiting a pub at a point in time.
// Check-ins are immutable once recorded.
type CheckIn struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	PubID     string    `json:"pub_id" db:"pub_id"`
	Timestamp time.Time `json:"timestamp" db:"checked_in_at"`
	DateKey   string    `json:"date_key" db:"date_key"`
}

// DayIn returns the calendar day of the check-in. The stored DateKey wins;
// otherwise the day is derived from the timestamp in loc.
func (c CheckIn) DayIn(loc *time.Location) string {
	if c.DateKey != "" {
		return c.DateKey
	}
	return DateKey(c.Timestamp, loc)
}

// HourIn returns the local hour-of-day of the check-in in loc
func (c CheckIn) HourIn(loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	return c.Timestamp.In(loc).Hour()
}

// DateKey formats t as a calendar-day key in loc
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateKeyLayout)
}

// CheckInSubmission represents a request to record a check-in
type CheckInSubmission struct {
	UserID    string    `json:"user_id" validate:"required,max=64"`
	PubID     string    `json:"pub_id" validate:"required,max=64"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// BatchCheckInSubmission represents multiple check-in submissions
type BatchCheckInSubmission struct {
	CheckIns []CheckInSubmission `json:"checkins"`
}

// CheckInResult is the outcome of recording a check-in
type CheckInResult struct {
	CheckIn   CheckIn       `json:"checkin"`
	NewBadges []EarnedBadge `json:"new_badges"`
}
