package api

import (
	"crypto/subtle"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/dosewise/internal/errors"
	"github.com/gmsas95/dosewise/internal/export"
	"github.com/gmsas95/dosewise/internal/health"
	"github.com/gmsas95/dosewise/internal/prefs"
	"github.com/gmsas95/dosewise/internal/security"
)

const defaultUser = "default"

var textValidator = security.NewTextValidator()

func badRequest(msg string) error {
	return apperrors.New(apperrors.ErrBadRequest.Code, msg)
}

func checkText(fields ...string) error {
	if err := textValidator.ValidateAll(fields...); err != nil {
		return badRequest(err.Error())
	}
	return nil
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   s.version,
		"timestamp": s.tracker.Now().Unix(),
	})
}

func (s *Server) handleMetricsJSON(c *fiber.Ctx) error {
	return c.JSON(s.metrics.Snapshot())
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request")
	}

	if want := s.config.Security.AdminPassword; want != "" {
		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(want)) != 1 {
			s.logger.Warn("Login rejected", zap.String("ip", c.IP()))
			return apperrors.New(apperrors.ErrUnauthorized.Code, "invalid credentials")
		}
	}
	if req.UserID == "" {
		req.UserID = defaultUser
	}

	// tokens live on the wall clock, not the tracker's
	now := time.Now()
	expires := now.Add(s.config.TokenTTL())
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   req.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})

	tokenString, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, "failed to generate token")
	}

	return c.JSON(loginResponse{Token: tokenString, UserID: req.UserID, ExpiresAt: expires})
}

// ==================== Medications ====================

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	meds, err := s.store.ListMedications(c.UserContext(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(meds)
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	var req medicationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request")
	}
	if err := checkText(req.Name, req.Dosage, req.Instructions); err != nil {
		return err
	}

	med := &health.Medication{
		UserID:       userID(c),
		Name:         req.Name,
		Dosage:       req.Dosage,
		Instructions: req.Instructions,
	}
	if err := s.store.CreateMedication(c.UserContext(), med); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(med)
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	med, err := s.store.GetMedication(c.UserContext(), userID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(med)
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	var req medicationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request")
	}
	if err := checkText(req.Name, req.Dosage, req.Instructions); err != nil {
		return err
	}

	med := &health.Medication{
		ID:           c.Params("id"),
		UserID:       userID(c),
		Name:         req.Name,
		Dosage:       req.Dosage,
		Instructions: req.Instructions,
	}
	if err := s.store.UpdateMedication(c.UserContext(), med); err != nil {
		return err
	}

	updated, err := s.store.GetMedication(c.UserContext(), med.UserID, med.ID)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	uid := userID(c)
	if err := s.store.DeleteMedication(c.UserContext(), uid, c.Params("id")); err != nil {
		return err
	}
	// the cascade removed logs the cached view may still hold
	s.tracker.Invalidate(uid)
	return c.SendStatus(fiber.StatusNoContent)
}

// ==================== Schedules ====================

func (s *Server) handleCreateSchedule(c *fiber.Ctx) error {
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request")
	}
	if len(req.DaysOfWeek) == 0 {
		req.DaysOfWeek = append([]health.Weekday(nil), health.AllWeekdays...)
	}

	sched := &health.Schedule{
		MedicationID: c.Params("id"),
		UserID:       userID(c),
		TimeToTake:   req.TimeToTake,
		DaysOfWeek:   req.DaysOfWeek,
	}
	if err := s.store.CreateSchedule(c.UserContext(), sched); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sched)
}

func (s *Server) handleListSchedules(c *fiber.Ctx) error {
	schedules, err := s.store.ListSchedules(c.UserContext(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(schedules)
}

func (s *Server) handleDeleteSchedule(c *fiber.Ctx) error {
	uid := userID(c)
	if err := s.store.DeleteSchedule(c.UserContext(), uid, c.Params("id")); err != nil {
		return err
	}
	s.tracker.Invalidate(uid)
	return c.SendStatus(fiber.StatusNoContent)
}

// ==================== Today ====================

func (s *Server) handleToday(c *fiber.Ctx) error {
	view, err := s.tracker.Today(c.UserContext(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *Server) handleNextDose(c *fiber.Ctx) error {
	view, err := s.tracker.Today(c.UserContext(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"next": view.Next})
}

func (s *Server) handleMarkTaken(c *fiber.Ctx) error {
	doseTime, err := url.PathUnescape(c.Params("time"))
	if err != nil {
		return badRequest("invalid dose time")
	}

	var req markRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest("invalid request")
		}
	}
	if err := checkText(req.Notes); err != nil {
		return err
	}

	result, err := s.tracker.MarkTaken(c.UserContext(), userID(c), doseTime, req.Notes)
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	if len(result.Logged) > 0 {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(result)
}

// ==================== Logs ====================

func (s *Server) handleRecordLog(c *fiber.Ctx) error {
	var req logRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request")
	}
	if err := checkText(req.Notes); err != nil {
		return err
	}

	var takenAt time.Time
	if req.TakenAt != nil {
		takenAt = *req.TakenAt
	}
	saved, err := s.tracker.RecordLog(c.UserContext(), userID(c), req.ScheduleID, req.Status, takenAt, req.Notes)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (s *Server) handleListLogs(c *fiber.Ctx) error {
	from, to, err := s.dateRange(c)
	if err != nil {
		return err
	}
	entries, err := s.tracker.History(c.UserContext(), userID(c), from, to)
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

// dateRange reads inclusive from/to dates (YYYY-MM-DD) and returns the
// half-open instant range. The default is the last 30 days.
func (s *Server) dateRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	loc := s.tracker.Location()
	now := s.tracker.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	to := today.AddDate(0, 0, 1)
	if v := c.Query("to"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, badRequest("to must be YYYY-MM-DD")
		}
		to = d.AddDate(0, 0, 1)
	}

	from := to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, badRequest("from must be YYYY-MM-DD")
		}
		from = d
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, badRequest("from must not be after to")
	}
	return from, to, nil
}

// ==================== Adherence ====================

func (s *Server) handleMonthly(c *fiber.Ctx) error {
	now := s.tracker.Now()
	year, month := now.Year(), now.Month()
	if v := c.Query("month"); v != "" {
		m, err := time.Parse("2006-01", v)
		if err != nil {
			return badRequest("month must be YYYY-MM")
		}
		year, month = m.Year(), m.Month()
	}

	adh, err := s.tracker.Monthly(c.UserContext(), userID(c), year, month)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"month":     fmt.Sprintf("%04d-%02d", year, int(month)),
		"adherence": adh,
	})
}

func (s *Server) handleWeekly(c *fiber.Ctx) error {
	var start time.Time
	if v := c.Query("start"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, s.tracker.Location())
		if err != nil {
			return badRequest("start must be YYYY-MM-DD")
		}
		start = d
	}

	week, err := s.tracker.Weekly(c.UserContext(), userID(c), start)
	if err != nil {
		return err
	}
	return c.JSON(week)
}

func (s *Server) handleStreak(c *fiber.Ctx) error {
	uid := userID(c)
	p, err := s.prefs.Get(uid)
	if err != nil {
		return err
	}

	streak, err := s.tracker.StreakWithin(c.UserContext(), uid, p.StreakLookbackDays)
	if err != nil {
		return err
	}
	return c.JSON(streakResponse{Streak: streak, LookbackDays: p.StreakLookbackDays})
}

func (s *Server) handlePatterns(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)
	if days < 1 || days > 365 {
		return badRequest("days must be within 1..365")
	}

	patterns, err := s.tracker.Patterns(c.UserContext(), userID(c), days)
	if err != nil {
		return err
	}
	return c.JSON(patterns)
}

// ==================== Preferences ====================

func (s *Server) handleGetPreferences(c *fiber.Ctx) error {
	p, err := s.prefs.Get(userID(c))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (s *Server) handlePutPreferences(c *fiber.Ctx) error {
	p := prefs.Defaults()
	if err := c.BodyParser(&p); err != nil {
		return badRequest("invalid request")
	}
	if err := s.prefs.Put(userID(c), p); err != nil {
		return err
	}
	return c.JSON(p)
}

// ==================== Export ====================

func (s *Server) handleExport(c *fiber.Ctx) error {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		return badRequest(err.Error())
	}
	from, to, err := s.dateRange(c)
	if err != nil {
		return err
	}

	entries, err := s.tracker.History(c.UserContext(), userID(c), from, to)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="dosewise-history.%s"`, format))
	return export.Write(c, format, export.Rows(entries, s.tracker.Location()))
}
