package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/qa-forum/backend/internal/middleware"
	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/services"
)

type VoteHandler struct {
	votes *services.VoteService
}

func NewVoteHandler(votes *services.VoteService) *VoteHandler {
	return &VoteHandler{votes: votes}
}

// Vote casts, flips or removes the caller's vote (PROTECTED - requires authentication).
// A value of 0 removes any existing vote.
func (h *VoteHandler) Vote(c *gin.Context) {
	voterID, ok := extractUserID(c)
	if !ok {
		writeVoteError(c, middleware.ErrUnauthenticated)
		return
	}

	var input models.VoteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		writeVoteError(c, fmt.Errorf("value is required: %w", services.ErrInvalidRequest))
		return
	}
	target, err := services.TargetFromIDs(input.QuestionID, input.AnswerID)
	if err != nil {
		writeVoteError(c, err)
		return
	}

	var result services.VoteResult
	if *input.Value == 0 {
		result, err = h.votes.RemoveVote(c.Request.Context(), voterID, target)
	} else {
		result, err = h.votes.CastVote(c.Request.Context(), voterID, target, *input.Value)
	}
	if err != nil {
		writeVoteError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.VoteResponse{
		Success:        true,
		Message:        result.Message,
		ResultingValue: result.Value,
		VoteCount:      result.VoteCount,
	})
}

// writeVoteError answers a failed vote in the same shape as a successful one.
func writeVoteError(c *gin.Context, err error) {
	status, msg := errorStatus(c, err)
	c.JSON(status, models.VoteResponse{Success: false, Message: msg})
}

func (h *VoteHandler) QuestionTotals(c *gin.Context) {
	h.totals(c, models.TargetQuestion)
}

func (h *VoteHandler) AnswerTotals(c *gin.Context) {
	h.totals(c, models.TargetAnswer)
}

func (h *VoteHandler) totals(c *gin.Context, kind models.TargetKind) {
	target := services.Target{Kind: kind, ID: c.Param("id")}
	totals, err := h.votes.Totals(c.Request.Context(), target)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"upvotes": totals.Upvotes, "downvotes": totals.Downvotes, "total": totals.Total}
	if voterID, ok := extractUserID(c); ok {
		mine, err := h.votes.GetUserVote(c.Request.Context(), voterID, target)
		if err != nil {
			writeError(c, err)
			return
		}
		resp["user_vote"] = mine
	}
	c.JSON(http.StatusOK, resp)
}

// MyVotes lists the caller's votes, newest first.
func (h *VoteHandler) MyVotes(c *gin.Context) {
	voterID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	votes, err := h.votes.VotesByUser(c.Request.Context(), voterID, pageFromQuery(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": votes})
}

func (h *VoteHandler) TopQuestions(c *gin.Context) {
	questions, err := h.votes.TopVotedQuestions(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

func (h *VoteHandler) TopAnswers(c *gin.Context) {
	answers, err := h.votes.TopVotedAnswers(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answers": answers})
}
