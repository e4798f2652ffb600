package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/services"
)

type QuestionHandler struct {
	questions *services.QuestionService
}

func NewQuestionHandler(questions *services.QuestionService) *QuestionHandler {
	return &QuestionHandler{questions: questions}
}

// GetQuestions lists questions. Query params: q, tags (comma separated),
// sort (created_at|vote_count|views), order (asc|desc), page, limit.
func (h *QuestionHandler) GetQuestions(c *gin.Context) {
	sort, err := services.ParseSortKey(c.Query("sort"))
	if err != nil {
		writeError(c, err)
		return
	}
	order, err := services.ParseSortOrder(c.Query("order"))
	if err != nil {
		writeError(c, err)
		return
	}

	page := pageFromQuery(c)
	questions, total, err := h.questions.ListQuestions(c.Request.Context(), services.ListParams{
		Query: c.Query("q"),
		Tags:  splitCSV(c.Query("tags")),
		Sort:  sort,
		Order: order,
		Page:  page,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"questions": questions,
		"total":     total,
		"page":      page.Page,
	})
}

// GetQuestion returns one question with tags and answers and counts the view.
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id := c.Param("id")
	if err := h.questions.IncrementViews(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	question, err := h.questions.GetQuestion(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

func (h *QuestionHandler) GetUnanswered(c *gin.Context) {
	questions, err := h.questions.UnansweredQuestions(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

// CreateQuestion (PROTECTED - requires authentication)
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	userID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input models.CreateQuestionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, err := h.questions.CreateQuestion(c.Request.Context(), userID, services.QuestionInput{
		Title:    input.Title,
		Content:  input.Content,
		TagNames: input.TagNames,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

// UpdateQuestion (PROTECTED - owner only)
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	userID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input models.UpdateQuestionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, err := h.questions.UpdateQuestion(c.Request.Context(), userID, c.Param("id"), services.QuestionUpdate{
		Title:    input.Title,
		Content:  input.Content,
		TagNames: input.TagNames,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

// DeleteQuestion (PROTECTED - owner only)
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	userID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	if err := h.questions.DeleteQuestion(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Question deleted successfully"})
}
