package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/progress"
)

const progressColumns = `student_id, section_id, course_id, time_spent_sec, duration_watched_sec,
	completion_pct, is_completed, completed_activities, last_activity_ms`

// Every column merges commutatively, so concurrent increments of one entry converge.
// The watch threshold is re-checked against the summed duration.
const incrementProgressQuery = `
INSERT INTO section_progress (` + progressColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (student_id, section_id) DO UPDATE SET
	time_spent_sec = section_progress.time_spent_sec + excluded.time_spent_sec,
	duration_watched_sec = section_progress.duration_watched_sec + excluded.duration_watched_sec,
	completion_pct = CASE
		WHEN section_progress.is_completed OR excluded.is_completed
			OR (? > 0 AND section_progress.duration_watched_sec + excluded.duration_watched_sec >= ?) THEN 100
		WHEN excluded.completion_pct > section_progress.completion_pct THEN excluded.completion_pct
		ELSE section_progress.completion_pct
	END,
	is_completed = section_progress.is_completed OR excluded.is_completed
		OR (? > 0 AND section_progress.duration_watched_sec + excluded.duration_watched_sec >= ?),
	completed_activities = CASE
		WHEN excluded.completed_activities > section_progress.completed_activities THEN excluded.completed_activities
		ELSE section_progress.completed_activities
	END,
	last_activity_ms = CASE
		WHEN excluded.last_activity_ms > section_progress.last_activity_ms THEN excluded.last_activity_ms
		ELSE section_progress.last_activity_ms
	END`

type progressRow struct {
	StudentID           string `db:"student_id"`
	SectionID           string `db:"section_id"`
	CourseID            string `db:"course_id"`
	TimeSpentSec        int64  `db:"time_spent_sec"`
	DurationWatchedSec  int64  `db:"duration_watched_sec"`
	CompletionPct       int    `db:"completion_pct"`
	IsCompleted         bool   `db:"is_completed"`
	CompletedActivities int    `db:"completed_activities"`
	LastActivityMs      int64  `db:"last_activity_ms"`
}

func (r progressRow) toProgress() progress.SectionProgress {
	return progress.SectionProgress{
		StudentID:           r.StudentID,
		SectionID:           r.SectionID,
		CourseID:            r.CourseID,
		TimeSpentSec:        r.TimeSpentSec,
		DurationWatchedSec:  r.DurationWatchedSec,
		CompletionPct:       r.CompletionPct,
		IsCompleted:         r.IsCompleted,
		CompletedActivities: r.CompletedActivities,
		LastActivityAt:      progress.MillisToTime(r.LastActivityMs),
	}
}

type eventRow struct {
	TimestampMs             int64 `db:"timestamp_ms"`
	DeltaTimeSpentSec       int64 `db:"delta_time_spent_sec"`
	DeltaDurationWatchedSec int64 `db:"delta_duration_watched_sec"`
}

type progressRepository struct {
	db core.DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db core.DB) *progressRepository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) IncrementProgress(ctx context.Context, inc progress.Increment) (progress.SectionProgress, error) {
	// values of a brand-new entry
	completed := inc.MarkComplete || (inc.WatchThresholdSec > 0 && inc.DeltaDurationWatchedSec >= inc.WatchThresholdSec)
	pct := inc.CompletionPct
	if completed {
		pct = 100
	}

	var sp progress.SectionProgress
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(incrementProgressQuery),
			inc.StudentID, inc.SectionID, inc.CourseID, inc.DeltaTimeSpentSec, inc.DeltaDurationWatchedSec,
			pct, completed, inc.CompletedActivities, inc.LastActivityMs,
			inc.WatchThresholdSec, inc.WatchThresholdSec, inc.WatchThresholdSec, inc.WatchThresholdSec,
		)
		if err != nil {
			return storeErr(errors.Wrap(err, "upserting section progress"))
		}

		if len(inc.Events) > 0 {
			if err = appendEvents(ctx, tx, inc); err != nil {
				return err
			}
		}

		sp, err = getProgress(ctx, tx, inc.StudentID, inc.SectionID)
		return err
	})
	if err != nil {
		return progress.SectionProgress{}, err
	}
	return sp, nil
}

// appendEvents adds inc's events to the entry's log and prunes it to the newest inc.LogLimit.
func appendEvents(ctx context.Context, tx *sqlx.Tx, inc progress.Increment) error {
	q := tx.Rebind(`INSERT INTO progress_events
		(student_id, section_id, timestamp_ms, delta_time_spent_sec, delta_duration_watched_sec)
		VALUES (?, ?, ?, ?, ?)`)
	for _, ev := range inc.Events {
		if _, err := tx.ExecContext(ctx, q, inc.StudentID, inc.SectionID, ev.TimestampMs, ev.DeltaTimeSpentSec, ev.DeltaDurationWatchedSec); err != nil {
			return storeErr(errors.Wrap(err, "inserting progress event"))
		}
	}

	if inc.LogLimit <= 0 {
		return nil
	}
	q = tx.Rebind(`DELETE FROM progress_events
		WHERE student_id = ? AND section_id = ? AND id NOT IN (
			SELECT id FROM (
				SELECT id FROM progress_events WHERE student_id = ? AND section_id = ? ORDER BY id DESC LIMIT ?
			) AS kept
		)`)
	if _, err := tx.ExecContext(ctx, q, inc.StudentID, inc.SectionID, inc.StudentID, inc.SectionID, inc.LogLimit); err != nil {
		return storeErr(errors.Wrap(err, "pruning progress events"))
	}
	return nil
}

func getProgress(ctx context.Context, db core.DBExecutor, studentID, sectionID string) (progress.SectionProgress, error) {
	var row progressRow
	q := db.Rebind(`SELECT ` + progressColumns + ` FROM section_progress WHERE student_id = ? AND section_id = ?`)
	if err := db.GetContext(ctx, &row, q, studentID, sectionID); err != nil {
		return progress.SectionProgress{}, trapNoRowsErr(err, progress.ErrNotFound)
	}
	sp := row.toProgress()

	var events []eventRow
	q = db.Rebind(`SELECT timestamp_ms, delta_time_spent_sec, delta_duration_watched_sec
		FROM progress_events WHERE student_id = ? AND section_id = ? ORDER BY id`)
	if err := db.SelectContext(ctx, &events, q, studentID, sectionID); err != nil {
		return progress.SectionProgress{}, storeErr(errors.Wrap(err, "querying progress events"))
	}
	for _, ev := range events {
		sp.Log = append(sp.Log, progress.Event(ev))
	}
	return sp, nil
}

func (repo *progressRepository) GetProgress(ctx context.Context, studentID, sectionID string) (progress.SectionProgress, error) {
	return getProgress(ctx, repo.db, studentID, sectionID)
}

// QueryStudentProgress returns the entries without their event log.
func (repo *progressRepository) QueryStudentProgress(ctx context.Context, studentID string, sectionIDs []string) ([]progress.SectionProgress, error) {
	if len(sectionIDs) == 0 {
		return []progress.SectionProgress{}, nil
	}

	q, args, err := sqlx.In(`SELECT `+progressColumns+` FROM section_progress WHERE student_id = ? AND section_id IN (?)`, studentID, sectionIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building progress query")
	}
	var rows []progressRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, storeErr(errors.Wrap(err, "querying student progress"))
	}

	entries := make([]progress.SectionProgress, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toProgress())
	}
	return entries, nil
}

func (repo *progressRepository) RecordActivityCompletion(ctx context.Context, studentID, sectionID, activityID string) (int, error) {
	q := repo.db.Rebind(`INSERT INTO activity_completions (student_id, section_id, activity_id)
		VALUES (?, ?, ?) ON CONFLICT DO NOTHING`)
	if _, err := repo.db.ExecContext(ctx, q, studentID, sectionID, activityID); err != nil {
		return 0, storeErr(errors.Wrap(err, "recording activity completion"))
	}

	var done int
	q = repo.db.Rebind(`SELECT COUNT(*) FROM activity_completions WHERE student_id = ? AND section_id = ?`)
	if err := repo.db.GetContext(ctx, &done, q, studentID, sectionID); err != nil {
		return 0, storeErr(errors.Wrap(err, "counting activity completions"))
	}
	return done, nil
}
