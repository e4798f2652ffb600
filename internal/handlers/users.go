package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/services"
)

type UserHandler struct {
	db        *gorm.DB
	stats     *services.StatsService
	questions *services.QuestionService
	answers   *services.AnswerService
}

func NewUserHandler(db *gorm.DB, stats *services.StatsService, questions *services.QuestionService, answers *services.AnswerService) *UserHandler {
	return &UserHandler{db: db, stats: stats, questions: questions, answers: answers}
}

// GetUserProfile returns a user's profile with content counts
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	profile, err := h.stats.UserProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *UserHandler) GetUserQuestions(c *gin.Context) {
	questions, err := h.questions.QuestionsByUser(c.Request.Context(), c.Param("id"), pageFromQuery(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

func (h *UserHandler) GetUserAnswers(c *gin.Context) {
	answers, err := h.answers.AnswersByUser(c.Request.Context(), c.Param("id"), pageFromQuery(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answers": answers})
}

func (h *UserHandler) GetAcceptedAnswers(c *gin.Context) {
	answers, err := h.answers.AcceptedAnswersByUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answers": answers})
}

// UpdateUserProfile edits the caller's own display fields. Reputation is not
// writable here.
func (h *UserHandler) UpdateUserProfile(c *gin.Context) {
	userID := c.Param("id")

	authUserID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if authUserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only update your own profile"})
		return
	}

	var input struct {
		DisplayName *string `json:"display_name"`
		Bio         *string `json:"bio"`
		AvatarURL   *string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{}
	if input.DisplayName != nil {
		updates["display_name"] = *input.DisplayName
	}
	if input.Bio != nil {
		updates["bio"] = *input.Bio
	}
	if input.AvatarURL != nil {
		updates["avatar_url"] = *input.AvatarURL
	}

	db := h.db.WithContext(c.Request.Context())
	var user models.User
	if err := db.Take(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if len(updates) > 0 {
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
	}
	c.JSON(http.StatusOK, user)
}
