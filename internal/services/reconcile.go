package services

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/metrics"
	"github.com/emilythestrangee/qa-forum/backend/internal/models"
)

// Reconciler recomputes every derived counter from its source of truth and
// reports (optionally repairs) rows where the cached value drifted.
type Reconciler struct {
	db     *gorm.DB
	tx     *txRunner
	logger *slog.Logger
}

// Drift is one row whose cached value disagrees with the recomputed one.
type Drift struct {
	Counter string `json:"counter"`
	ID      string `json:"id"`
	Cached  int    `json:"cached"`
	Actual  int    `json:"actual"`
}

type Report struct {
	Drifts []Drift `json:"drifts"`
	Fixed  bool    `json:"fixed"`
}

func (r Report) Clean() bool {
	return len(r.Drifts) == 0
}

// ByCounter groups drifted ids per counter.
func (r Report) ByCounter() map[string][]string {
	out := make(map[string][]string)
	for _, d := range r.Drifts {
		out[d.Counter] = append(out[d.Counter], d.ID)
	}
	return out
}

const (
	counterQuestionVotes = "question_vote_count"
	counterAnswerVotes   = "answer_vote_count"
	counterTagUsage      = "tag_usage_count"
	counterReputation    = "user_reputation"
	counterSolved        = "question_solved"
)

type driftRow struct {
	ID     string
	Cached int
	Actual int
}

type reconcilePass struct {
	counter string
	check   func(db *gorm.DB) ([]driftRow, error)
	fix     func(tx *gorm.DB, ids []string) error
}

func (r *Reconciler) passes() []reconcilePass {
	return []reconcilePass{
		{counterQuestionVotes, voteCountCheck("questions", models.TargetQuestion), voteCountFix(&models.Question{}, "questions", models.TargetQuestion)},
		{counterAnswerVotes, voteCountCheck("answers", models.TargetAnswer), voteCountFix(&models.Answer{}, "answers", models.TargetAnswer)},
		{counterTagUsage, tagUsageCheck, tagUsageFix},
		{counterReputation, reputationCheck, reputationFix},
		{counterSolved, solvedCheck, solvedFix},
	}
}

// Check runs every pass concurrently and returns the combined drift report.
func (r *Reconciler) Check(ctx context.Context) (Report, error) {
	passes := r.passes()
	found := make([][]driftRow, len(passes))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range passes {
		g.Go(func() error {
			rows, err := p.check(r.db.WithContext(gctx))
			if err != nil {
				return fmt.Errorf("%s: %w", p.counter, err)
			}
			found[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	var report Report
	for i, p := range passes {
		metrics.ReconcileDrift.WithLabelValues(p.counter).Set(float64(len(found[i])))
		for _, row := range found[i] {
			report.Drifts = append(report.Drifts, Drift{Counter: p.counter, ID: row.ID, Cached: row.Cached, Actual: row.Actual})
		}
		if len(found[i]) > 0 {
			r.logger.Warn("counter drift", "counter", p.counter, "rows", len(found[i]))
		}
	}
	return report, nil
}

// Fix checks, then rewrites each drifted counter from its source, one
// transaction per counter. The returned report lists what was found.
func (r *Reconciler) Fix(ctx context.Context) (Report, error) {
	report, err := r.Check(ctx)
	if err != nil {
		return Report{}, err
	}
	if report.Clean() {
		return report, nil
	}

	byCounter := report.ByCounter()
	for _, p := range r.passes() {
		ids := byCounter[p.counter]
		if len(ids) == 0 {
			continue
		}
		slices.Sort(ids)
		err := r.tx.run(ctx, "reconcile_"+p.counter, func(tx *gorm.DB) error {
			return p.fix(tx, ids)
		})
		if err != nil {
			return report, fmt.Errorf("fix %s: %w", p.counter, err)
		}
		metrics.ReconcileDrift.WithLabelValues(p.counter).Set(0)
		r.logger.Info("counter repaired", "counter", p.counter, "rows", len(ids))
	}
	report.Fixed = true
	return report, nil
}

func scanDrift(db *gorm.DB, inner string, args ...any) ([]driftRow, error) {
	var rows []driftRow
	err := db.Raw("SELECT id, cached, actual FROM ("+inner+") r WHERE r.cached <> r.actual ORDER BY id", args...).
		Scan(&rows).Error
	return rows, err
}

func voteCountCheck(table string, kind models.TargetKind) func(*gorm.DB) ([]driftRow, error) {
	return func(db *gorm.DB) ([]driftRow, error) {
		inner := fmt.Sprintf(`SELECT t.id AS id, t.vote_count AS cached, COALESCE(SUM(v.value), 0) AS actual
			FROM %s t LEFT JOIN votes v ON v.target_kind = ? AND v.target_id = t.id
			GROUP BY t.id, t.vote_count`, table)
		return scanDrift(db, inner, kind)
	}
}

func voteCountFix(model any, table string, kind models.TargetKind) func(*gorm.DB, []string) error {
	return func(tx *gorm.DB, ids []string) error {
		sum := fmt.Sprintf("(SELECT COALESCE(SUM(v.value), 0) FROM votes v WHERE v.target_kind = ? AND v.target_id = %s.id)", table)
		return tx.Model(model).Where("id IN ?", ids).
			UpdateColumn("vote_count", gorm.Expr(sum, kind)).Error
	}
}

func tagUsageCheck(db *gorm.DB) ([]driftRow, error) {
	return scanDrift(db, `SELECT t.id AS id, t.usage_count AS cached, COUNT(qt.question_id) AS actual
		FROM tags t LEFT JOIN question_tags qt ON qt.tag_id = t.id
		GROUP BY t.id, t.usage_count`)
}

func tagUsageFix(tx *gorm.DB, ids []string) error {
	return tx.Model(&models.Tag{}).Where("id IN ?", ids).
		UpdateColumn("usage_count", gorm.Expr("(SELECT COUNT(*) FROM question_tags qt WHERE qt.tag_id = tags.id)")).Error
}

// pointsCase renders the reputation policy table as a SQL CASE over v.value.
func pointsCase() string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, value := range slices.Sorted(maps.Keys(reputationPoints)) {
		if value == 0 {
			continue
		}
		fmt.Fprintf(&b, " WHEN v.value = %d THEN %d", value, points(value))
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}

// earnedReputation is a SQL expression for the reputation owed to the user
// whose id is in ownerCol, derived from the live votes on their content.
func earnedReputation(ownerCol string) string {
	pc := pointsCase()
	return fmt.Sprintf(`COALESCE((SELECT SUM(%[1]s) FROM votes v JOIN questions q ON q.id = v.target_id
			WHERE v.target_kind = '%[3]s' AND q.user_id = %[2]s), 0)
		+ COALESCE((SELECT SUM(%[1]s) FROM votes v JOIN answers a ON a.id = v.target_id
			WHERE v.target_kind = '%[4]s' AND a.user_id = %[2]s), 0)`,
		pc, ownerCol, models.TargetQuestion, models.TargetAnswer)
}

func reputationCheck(db *gorm.DB) ([]driftRow, error) {
	return scanDrift(db, "SELECT u.id AS id, u.reputation AS cached, "+earnedReputation("u.id")+" AS actual FROM users u")
}

func reputationFix(tx *gorm.DB, ids []string) error {
	return tx.Model(&models.User{}).Where("id IN ?", ids).
		UpdateColumn("reputation", gorm.Expr(earnedReputation("users.id"))).Error
}

// solvedCheck reports questions whose solved flag or accepted_answer_id does
// not match their answers, or that have more than one accepted answer.
// Cached is the solved flag, Actual the number of accepted answers.
func solvedCheck(db *gorm.DB) ([]driftRow, error) {
	var rows []struct {
		ID               string
		Solved           int
		AcceptedCount    int
		AcceptedAnswerID *string
		LiveAcceptedID   *string
	}
	err := db.Raw(`SELECT q.id AS id,
			CASE WHEN q.is_solved THEN 1 ELSE 0 END AS solved,
			(SELECT COUNT(*) FROM answers a WHERE a.question_id = q.id AND a.is_accepted = ?) AS accepted_count,
			q.accepted_answer_id AS accepted_answer_id,
			(SELECT MIN(a.id) FROM answers a WHERE a.question_id = q.id AND a.is_accepted = ?) AS live_accepted_id
		FROM questions q ORDER BY q.id`, true, true).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var drift []driftRow
	for _, row := range rows {
		consistent := row.AcceptedCount <= 1 &&
			(row.Solved == 1) == (row.AcceptedCount == 1) &&
			equalIDs(row.AcceptedAnswerID, row.LiveAcceptedID)
		if !consistent {
			drift = append(drift, driftRow{ID: row.ID, Cached: row.Solved, Actual: row.AcceptedCount})
		}
	}
	return drift, nil
}

func equalIDs(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// solvedFix keeps the most recently accepted answer of each question, clears
// the rest and recomputes the question's solved state.
func solvedFix(tx *gorm.DB, ids []string) error {
	for _, id := range ids {
		var question models.Question
		if err := forUpdate(tx).Select("id").Take(&question, "id = ?", id).Error; err != nil {
			return notFound(err, "question")
		}

		var accepted []models.Answer
		err := tx.Select("id").
			Where("question_id = ? AND is_accepted = ?", id, true).
			Order("updated_at desc").Order("id").
			Find(&accepted).Error
		if err != nil {
			return err
		}
		if len(accepted) > 1 {
			extra := make([]string, 0, len(accepted)-1)
			for _, a := range accepted[1:] {
				extra = append(extra, a.ID)
			}
			if err := tx.Model(&models.Answer{}).Where("id IN ?", extra).UpdateColumn("is_accepted", false).Error; err != nil {
				return err
			}
		}
		if _, err := syncSolved(tx, id); err != nil {
			return err
		}
	}
	return nil
}
