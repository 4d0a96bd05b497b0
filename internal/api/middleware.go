package api

import (
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/gmsas95/dosewise/internal/errors"
)

const userIDKey = "user_id"

func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)
		if auth == "" {
			return apperrors.New(apperrors.ErrUnauthorized.Code, "missing authorization header")
		}

		tokenString := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.Security.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return apperrors.New(apperrors.ErrUnauthorized.Code, "invalid token")
		}

		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			return apperrors.New(apperrors.ErrUnauthorized.Code, "token has no subject")
		}

		c.Locals(userIDKey, sub)
		return c.Next()
	}
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}

// userLimiter hands out one token bucket per user.
type userLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newUserLimiter(perMinute, burst int) *userLimiter {
	return &userLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *userLimiter) Allow(user string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[user]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[user] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// rateLimitMiddleware throttles writes only. Reads are cheap and the
// dashboard polls them.
func (s *Server) rateLimitMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodDelete, fiber.MethodPatch:
			if !s.limiter.Allow(userID(c)) {
				s.logger.Warn("Rate limit exceeded",
					zap.String("user_id", userID(c)),
					zap.String("path", c.Path()),
				)
				return apperrors.ErrRateLimited
			}
		}
		return c.Next()
	}
}

// observe records request metrics and a log line. Errors are rendered here
// so the status code is known before recording.
func (s *Server) observe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		route := c.Route().Path
		elapsed := time.Since(start)
		s.metrics.RecordRequest(c.Method(), route, status, elapsed)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
		}
		if id := userID(c); id != "" {
			fields = append(fields, zap.String("user_id", id))
		}
		if status >= fiber.StatusInternalServerError {
			s.logger.Warn("HTTP request", fields...)
		} else {
			s.logger.Debug("HTTP request", fields...)
		}
		return nil
	}
}

var codeStatus = map[string]int{
	apperrors.ErrMedicationNotFound.Code: fiber.StatusNotFound,
	apperrors.ErrScheduleNotFound.Code:   fiber.StatusNotFound,
	apperrors.ErrNotFound.Code:           fiber.StatusNotFound,
	apperrors.ErrNoDoseAtTime.Code:       fiber.StatusNotFound,

	apperrors.ErrMedicationInvalid.Code: fiber.StatusBadRequest,
	apperrors.ErrScheduleInvalid.Code:   fiber.StatusBadRequest,
	apperrors.ErrLogInvalid.Code:        fiber.StatusBadRequest,
	apperrors.ErrPreferenceInvalid.Code: fiber.StatusBadRequest,
	apperrors.ErrBadRequest.Code:        fiber.StatusBadRequest,

	apperrors.ErrUnauthorized.Code: fiber.StatusUnauthorized,
	apperrors.ErrForbidden.Code:    fiber.StatusForbidden,
	apperrors.ErrRateLimited.Code:  fiber.StatusTooManyRequests,

	apperrors.ErrDoseAlreadyTaken.Code: fiber.StatusConflict,

	apperrors.ErrStoreUnavailable.Code: fiber.StatusServiceUnavailable,
}

func statusFor(err error) int {
	if code, ok := codeStatus[apperrors.GetCode(err)]; ok {
		return code
	}
	return fiber.StatusInternalServerError
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var ferr *fiber.Error
	if stderrors.As(err, &ferr) {
		return c.Status(ferr.Code).JSON(fiber.Map{"error": ferr.Message})
	}

	var appErr *apperrors.AppError
	if !stderrors.As(err, &appErr) {
		s.logger.Error("Unhandled request error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
			"code":  apperrors.ErrInternal.Code,
		})
	}

	status := statusFor(appErr)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}
