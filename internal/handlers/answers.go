package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/services"
)

type AnswerHandler struct {
	answers *services.AnswerService
}

func NewAnswerHandler(answers *services.AnswerService) *AnswerHandler {
	return &AnswerHandler{answers: answers}
}

func (h *AnswerHandler) GetAnswers(c *gin.Context) {
	answers, err := h.answers.AnswersForQuestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answers": answers})
}

// CreateAnswer (PROTECTED - requires authentication)
func (h *AnswerHandler) CreateAnswer(c *gin.Context) {
	userID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input models.CreateAnswerRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := h.answers.CreateAnswer(c.Request.Context(), userID, c.Param("id"), input.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, answer)
}

// UpdateAnswer (PROTECTED - author only)
func (h *AnswerHandler) UpdateAnswer(c *gin.Context) {
	userID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input models.CreateAnswerRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := h.answers.UpdateAnswer(c.Request.Context(), userID, c.Param("id"), input.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// DeleteAnswer (PROTECTED - author only)
func (h *AnswerHandler) DeleteAnswer(c *gin.Context) {
	userID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	if err := h.answers.DeleteAnswer(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Answer deleted successfully"})
}

// Accept (PROTECTED - question owner only)
func (h *AnswerHandler) Accept(c *gin.Context) {
	h.transition(c, h.answers.Accept, "Answer accepted")
}

// Unaccept (PROTECTED - question owner only)
func (h *AnswerHandler) Unaccept(c *gin.Context) {
	h.transition(c, h.answers.Unaccept, "Answer unaccepted")
}

func (h *AnswerHandler) transition(c *gin.Context, fn func(context.Context, string, string) (services.AcceptanceState, error), msg string) {
	userID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	state, err := fn(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "state": state})
}
