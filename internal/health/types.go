package health

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Weekday is a three-letter lowercase weekday code.
type Weekday string

const (
	Monday    Weekday = "mon"
	Tuesday   Weekday = "tue"
	Wednesday Weekday = "wed"
	Thursday  Weekday = "thu"
	Friday    Weekday = "fri"
	Saturday  Weekday = "sat"
	Sunday    Weekday = "sun"
)

// AllWeekdays is the fixed enumeration order used for iteration and tie-breaking.
var AllWeekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdayCodes = [...]Weekday{
	time.Sunday:    Sunday,
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
}

// WeekdayOf maps a time.Weekday to its code without going through locale formatting.
func WeekdayOf(d time.Weekday) Weekday {
	return weekdayCodes[d]
}

// Valid reports whether w is one of the seven codes.
func (w Weekday) Valid() bool {
	for _, d := range AllWeekdays {
		if d == w {
			return true
		}
	}
	return false
}

// LogStatus is the recorded outcome of a dose.
type LogStatus string

const (
	StatusTaken   LogStatus = "taken"
	StatusSkipped LogStatus = "skipped"
	StatusMissed  LogStatus = "missed"
)

func (s LogStatus) Valid() bool {
	switch s {
	case StatusTaken, StatusSkipped, StatusMissed:
		return true
	default:
		return false
	}
}

// Medication is a named drug entry owned by a user.
type Medication struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserID       string    `json:"user_id" gorm:"index" validate:"required"`
	Name         string    `json:"name" validate:"required,max=200"`
	Dosage       string    `json:"dosage" validate:"max=100"` // free text, e.g. "10mg"
	Instructions string    `json:"instructions,omitempty" validate:"max=1000"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (m *Medication) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Schedule is a recurrence rule attached to exactly one medication.
type Schedule struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	MedicationID string    `json:"medication_id" gorm:"index" validate:"required"`
	UserID       string    `json:"user_id" gorm:"index" validate:"required"`
	TimeToTake   string    `json:"time_to_take" validate:"required,clock"`
	DaysOfWeek   []Weekday `json:"days_of_week" gorm:"serializer:json" validate:"min=1,unique,dive,weekday"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Schedule) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ActiveOn reports whether the schedule recurs on day.
func (s Schedule) ActiveOn(day Weekday) bool {
	for _, d := range s.DaysOfWeek {
		if d == day {
			return true
		}
	}
	return false
}

// MedicationLog is an append-only record of a user acting on a dose.
type MedicationLog struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	ScheduleID string    `json:"schedule_id" gorm:"index" validate:"required"`
	UserID     string    `json:"user_id" gorm:"index" validate:"required"`
	TakenAt    time.Time `json:"taken_at" gorm:"index"`
	Status     LogStatus `json:"status" validate:"required,log_status"`
	Notes      string    `json:"notes,omitempty" validate:"max=1000"`
	CreatedAt  time.Time `json:"created_at"`
}

func (l *MedicationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// TakenOnly filters logs down to status taken.
func TakenOnly(logs []MedicationLog) []MedicationLog {
	taken := make([]MedicationLog, 0, len(logs))
	for _, l := range logs {
		if l.Status == StatusTaken {
			taken = append(taken, l)
		}
	}
	return taken
}
