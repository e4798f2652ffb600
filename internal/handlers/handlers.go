package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/config"
	"github.com/emilythestrangee/qa-forum/backend/internal/middleware"
	"github.com/emilythestrangee/qa-forum/backend/internal/services"
)

// Handler combines all handler types
type Handler struct {
	Auth     *AuthHandler
	Vote     *VoteHandler
	Question *QuestionHandler
	Answer   *AnswerHandler
	Tag      *TagHandler
	User     *UserHandler
	Stats    *StatsHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(db *gorm.DB, svc *services.Services, cfg config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		Auth:     NewAuthHandler(db, []byte(cfg.JWTSecret), cfg.TokenTTL, logger),
		Vote:     NewVoteHandler(svc.Votes),
		Question: NewQuestionHandler(svc.Questions),
		Answer:   NewAnswerHandler(svc.Answers),
		Tag:      NewTagHandler(svc.Tags, svc.Questions),
		User:     NewUserHandler(db, svc.Stats, svc.Questions, svc.Answers),
		Stats:    NewStatsHandler(svc.Stats),
	}
}

func extractUserID(c *gin.Context) (string, bool) {
	return middleware.UserID(c)
}

// errorStatus maps core errors to HTTP statuses. Unknown errors are recorded
// on the context and reported as 500 without their text.
func errorStatus(c *gin.Context, err error) (int, string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, services.ErrSelfVoteForbidden):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrConcurrencyConflict):
		status = http.StatusConflict
	case errors.Is(err, middleware.ErrUnauthenticated):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		return status, "Internal server error"
	}
	return status, err.Error()
}

func writeError(c *gin.Context, err error) {
	status, msg := errorStatus(c, err)
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return n
}

func pageFromQuery(c *gin.Context) services.Page {
	return services.Page{Page: queryInt(c, "page", 1), Limit: queryInt(c, "limit", 0)}
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
