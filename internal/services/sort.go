package services

import (
	"fmt"

	"gorm.io/gorm/clause"
)

// SortKey is the closed set of columns questions can be ordered by.
type SortKey string

const (
	SortCreatedAt SortKey = "created_at"
	SortVoteCount SortKey = "vote_count"
	SortViews     SortKey = "views"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortKey accepts only the known keys; empty means created_at.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(s) {
	case "":
		return SortCreatedAt, nil
	case SortCreatedAt, SortVoteCount, SortViews:
		return SortKey(s), nil
	}
	return "", fmt.Errorf("unknown sort key %q: %w", s, ErrInvalidRequest)
}

// ParseSortOrder accepts asc or desc; empty means desc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "":
		return SortDesc, nil
	case SortAsc, SortDesc:
		return SortOrder(s), nil
	}
	return "", fmt.Errorf("unknown sort order %q: %w", s, ErrInvalidRequest)
}

func (k SortKey) orderBy(o SortOrder) clause.OrderByColumn {
	return clause.OrderByColumn{
		Column: clause.Column{Table: "questions", Name: string(k)},
		Desc:   o != SortAsc,
	}
}
