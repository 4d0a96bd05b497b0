package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	apperrors "github.com/gmsas95/dosewise/internal/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store handles medication, schedule and log persistence
type Store struct {
	db *gorm.DB
}

// OpenSQLite opens a SQLite database through the pure Go driver and wraps it in gorm.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	sqliteDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if path == ":memory:" {
		// every new connection to :memory: is a fresh database
		sqliteDB.SetMaxOpenConns(1)
	} else {
		sqliteDB.SetMaxOpenConns(10)
		sqliteDB.SetMaxIdleConns(5)
		sqliteDB.SetConnMaxLifetime(time.Hour)
	}

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return db, nil
}

// NewStore creates a new store and migrates its tables
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Medication{}, &Schedule{}, &MedicationLog{}); err != nil {
		return nil, fmt.Errorf("failed to migrate medication schemas: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Medication operations

func (s *Store) CreateMedication(ctx context.Context, med *Medication) error {
	if err := ValidateMedication(med); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(med).Error
}

func (s *Store) GetMedication(ctx context.Context, userID, id string) (*Medication, error) {
	var med Medication
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&med).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrMedicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get medication %s: %w", id, err)
	}
	return &med, nil
}

func (s *Store) UpdateMedication(ctx context.Context, med *Medication) error {
	if err := ValidateMedication(med); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&Medication{}).
		Where("id = ? AND user_id = ?", med.ID, med.UserID).
		Updates(map[string]interface{}{
			"name":         med.Name,
			"dosage":       med.Dosage,
			"instructions": med.Instructions,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update medication %s: %w", med.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrMedicationNotFound
	}
	return nil
}

// DeleteMedication removes a medication together with its schedules and their logs.
func (s *Store) DeleteMedication(ctx context.Context, userID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var scheduleIDs []string
		if err := tx.Model(&Schedule{}).Where("medication_id = ? AND user_id = ?", id, userID).
			Pluck("id", &scheduleIDs).Error; err != nil {
			return err
		}
		if len(scheduleIDs) > 0 {
			if err := tx.Where("schedule_id IN ?", scheduleIDs).Delete(&MedicationLog{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", scheduleIDs).Delete(&Schedule{}).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&Medication{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrMedicationNotFound
		}
		return nil
	})
}

func (s *Store) ListMedications(ctx context.Context, userID string) ([]Medication, error) {
	var meds []Medication
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&meds).Error
	return meds, err
}

// Schedule operations

func (s *Store) CreateSchedule(ctx context.Context, sched *Schedule) error {
	if err := ValidateSchedule(sched); err != nil {
		return err
	}
	if _, err := s.GetMedication(ctx, sched.UserID, sched.MedicationID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(sched).Error
}

func (s *Store) GetSchedule(ctx context.Context, userID, id string) (*Schedule, error) {
	var sched Schedule
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&sched).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", id, err)
	}
	return &sched, nil
}

func (s *Store) ListSchedules(ctx context.Context, userID string) ([]Schedule, error) {
	var scheds []Schedule
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("time_to_take ASC, created_at ASC").Find(&scheds).Error
	return scheds, err
}

func (s *Store) DeleteSchedule(ctx context.Context, userID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&Schedule{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrScheduleNotFound
		}
		return tx.Where("schedule_id = ?", id).Delete(&MedicationLog{}).Error
	})
}

// ListUserIDs returns every user owning at least one schedule.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&Schedule{}).Distinct().Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

// MedicationLog operations

// CreateLogs inserts logs in a single transaction. Timestamps are stored in UTC
// so range queries compare consistently.
func (s *Store) CreateLogs(ctx context.Context, logs []MedicationLog) ([]MedicationLog, error) {
	if len(logs) == 0 {
		return nil, nil
	}
	// taken logs are unique per schedule and local day of TakenAt
	days := make([][2]time.Time, len(logs))
	seen := make(map[[2]string]struct{})
	for i := range logs {
		if err := ValidateLog(&logs[i]); err != nil {
			return nil, err
		}
		if logs[i].Status == StatusTaken {
			local := logs[i].TakenAt
			key := [2]string{logs[i].ScheduleID, local.Format("2006-01-02")}
			if _, dup := seen[key]; dup {
				return nil, apperrors.ErrDoseAlreadyTaken
			}
			seen[key] = struct{}{}
			start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
			days[i] = [2]time.Time{start.UTC(), start.AddDate(0, 0, 1).UTC()}
		}
		logs[i].TakenAt = logs[i].TakenAt.UTC()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range logs {
			var count int64
			if err := tx.Model(&Schedule{}).
				Where("id = ? AND user_id = ?", logs[i].ScheduleID, logs[i].UserID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return apperrors.ErrScheduleNotFound
			}
			if logs[i].Status != StatusTaken {
				continue
			}
			if err := tx.Model(&MedicationLog{}).
				Where("schedule_id = ? AND status = ? AND taken_at >= ? AND taken_at < ?",
					logs[i].ScheduleID, StatusTaken, days[i][0], days[i][1]).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return apperrors.ErrDoseAlreadyTaken
			}
		}
		return tx.Create(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// ListLogs returns logs with taken_at in [from, to). A zero bound is open.
func (s *Store) ListLogs(ctx context.Context, userID string, from, to time.Time, statuses ...LogStatus) ([]MedicationLog, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !from.IsZero() {
		query = query.Where("taken_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		query = query.Where("taken_at < ?", to.UTC())
	}
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var logs []MedicationLog
	err := query.Order("taken_at ASC").Find(&logs).Error
	return logs, err
}
