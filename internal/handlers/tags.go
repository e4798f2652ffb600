package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/qa-forum/backend/internal/services"
)

type TagHandler struct {
	tags      *services.TagService
	questions *services.QuestionService
}

func NewTagHandler(tags *services.TagService, questions *services.QuestionService) *TagHandler {
	return &TagHandler{tags: tags, questions: questions}
}

func (h *TagHandler) GetTags(c *gin.Context) {
	tags, err := h.tags.ListTags(c.Request.Context(), pageFromQuery(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (h *TagHandler) GetPopular(c *gin.Context) {
	tags, err := h.tags.PopularTags(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (h *TagHandler) Search(c *gin.Context) {
	tags, err := h.tags.SearchTags(c.Request.Context(), c.Query("q"), queryInt(c, "limit", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (h *TagHandler) GetStats(c *gin.Context) {
	stats, err := h.tags.Statistics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *TagHandler) GetTag(c *gin.Context) {
	tag, err := h.tags.GetTag(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tag)
}

func (h *TagHandler) GetRelated(c *gin.Context) {
	tags, err := h.tags.RelatedTags(c.Request.Context(), c.Param("name"), queryInt(c, "limit", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (h *TagHandler) GetQuestions(c *gin.Context) {
	questions, err := h.questions.QuestionsByTag(c.Request.Context(), c.Param("name"), pageFromQuery(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}
