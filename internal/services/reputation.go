package services

import (
	"fmt"
	"maps"
	"slices"

	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
)

// reputationPoints maps a vote value to the points it is worth to the owner of
// the voted content.
var reputationPoints = map[int]int{
	1:  5,
	-1: -2,
	0:  0,
}

func points(value int) int {
	return reputationPoints[value]
}

// reputationDelta is the owner's reputation change when a vote moves from
// oldValue to newValue.
func reputationDelta(oldValue, newValue int) int {
	return points(newValue) - points(oldValue)
}

func applyReputation(tx *gorm.DB, userID string, delta int) error {
	if delta == 0 {
		return nil
	}
	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("reputation", gorm.Expr("reputation + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("owner %s: %w", userID, ErrNotFound)
	}
	return nil
}

// revokeVotes deletes every vote on the given targets of one kind and takes
// back the reputation each one granted, as if every vote were toggled off.
// ownerOf maps target id to its owner.
func revokeVotes(tx *gorm.DB, kind models.TargetKind, ownerOf map[string]string) error {
	if len(ownerOf) == 0 {
		return nil
	}
	ids := make([]string, 0, len(ownerOf))
	for id := range ownerOf {
		ids = append(ids, id)
	}

	var votes []models.Vote
	if err := tx.Where("target_kind = ? AND target_id IN ?", kind, ids).Find(&votes).Error; err != nil {
		return err
	}

	perOwner := make(map[string]int)
	for _, v := range votes {
		perOwner[ownerOf[v.TargetID]] += reputationDelta(v.Value, 0)
	}
	// Owners are updated in id order so concurrent revocations lock users consistently.
	for _, owner := range slices.Sorted(maps.Keys(perOwner)) {
		if err := applyReputation(tx, owner, perOwner[owner]); err != nil {
			return err
		}
	}

	return tx.Where("target_kind = ? AND target_id IN ?", kind, ids).Delete(&models.Vote{}).Error
}
