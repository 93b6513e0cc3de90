package sqlxrepos

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/section"
)

const sectionColumns = "id, course_id, title, parent_id, sort_order, kind, watch_threshold_sec, activity_ids"

type sectionRow struct {
	ID                string         `db:"id"`
	CourseID          string         `db:"course_id"`
	Title             string         `db:"title"`
	ParentID          string         `db:"parent_id"`
	Order             int            `db:"sort_order"`
	Kind              string         `db:"kind"`
	WatchThresholdSec int64          `db:"watch_threshold_sec"`
	ActivityIDs       types.JSONText `db:"activity_ids"`
}

func (r sectionRow) toSection() (section.Section, error) {
	s := section.Section{
		ID:                r.ID,
		CourseID:          r.CourseID,
		Title:             r.Title,
		ParentID:          r.ParentID,
		Order:             r.Order,
		Kind:              r.Kind,
		WatchThresholdSec: r.WatchThresholdSec,
	}
	if len(r.ActivityIDs) > 0 {
		if err := r.ActivityIDs.Unmarshal(&s.ActivityIDs); err != nil {
			return section.Section{}, errors.Wrapf(err, "decoding activities of section %s", r.ID)
		}
	}
	if len(s.ActivityIDs) == 0 {
		s.ActivityIDs = nil
	}
	return s, nil
}

type sectionRepository struct {
	db core.DB
}

var _ section.Repository = (*sectionRepository)(nil) // interface compliance check

func NewSectionRepository(db core.DB) *sectionRepository {
	return &sectionRepository{db: db}
}

func (repo *sectionRepository) CreateSection(
	ctx context.Context,
	courseID string,
	place func(current []section.Section) (section.Section, error),
) (section.Section, error) {
	var created section.Section
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		current, err := lockCourseSections(ctx, tx, courseID)
		if err != nil {
			return err
		}
		s, err := place(current)
		if err != nil {
			return err
		}

		ids := s.ActivityIDs
		if ids == nil {
			ids = []string{}
		}
		activities, err := json.Marshal(ids)
		if err != nil {
			return errors.Wrap(err, "encoding section activities")
		}

		q := tx.Rebind(`INSERT INTO sections (` + sectionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err = tx.ExecContext(ctx, q, s.ID, s.CourseID, s.Title, s.ParentID, s.Order, s.Kind, s.WatchThresholdSec, types.JSONText(activities))
		if err != nil {
			if isUniqueViolation(err) {
				return section.ErrDuplicateSection
			}
			return storeErr(errors.Wrap(err, "inserting section"))
		}
		created = s
		return nil
	})
	if err != nil {
		return section.Section{}, err
	}
	return created, nil
}

func (repo *sectionRepository) GetSection(ctx context.Context, id string) (section.Section, error) {
	var row sectionRow
	q := repo.db.Rebind(`SELECT ` + sectionColumns + ` FROM sections WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return section.Section{}, trapNoRowsErr(err, section.ErrNotFound)
	}
	return row.toSection()
}

func (repo *sectionRepository) QueryCourseSections(ctx context.Context, courseID string) ([]section.Section, error) {
	return querySections(ctx, repo.db, courseID, false)
}

// lockCourseSections serializes structural writes on a course, including the first insert
// into an empty course, and returns its sections.
func lockCourseSections(ctx context.Context, tx *sqlx.Tx, courseID string) ([]section.Section, error) {
	if isPostgres(tx) {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, courseID); err != nil {
			return nil, storeErr(errors.Wrap(err, "locking course sections"))
		}
	}
	return querySections(ctx, tx, courseID, true)
}

func querySections(ctx context.Context, db core.DBExecutor, courseID string, lock bool) ([]section.Section, error) {
	q := `SELECT ` + sectionColumns + ` FROM sections WHERE course_id = ? ORDER BY parent_id, sort_order, id`
	if lock {
		q = forUpdate(db, q)
	}

	var rows []sectionRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(q), courseID); err != nil {
		return nil, storeErr(errors.Wrap(err, "querying sections"))
	}
	sections := make([]section.Section, 0, len(rows))
	for _, row := range rows {
		s, err := row.toSection()
		if err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, nil
}

// UpdateStructure locks the course's sections while fn computes their new placement.
// Only ParentID & Order are written back.
func (repo *sectionRepository) UpdateStructure(
	ctx context.Context,
	courseID string,
	fn func(current []section.Section) ([]section.Section, error),
) ([]section.Section, error) {
	var result []section.Section
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		current, err := lockCourseSections(ctx, tx, courseID)
		if err != nil {
			return err
		}
		updated, err := fn(current)
		if err != nil {
			return err
		}

		q := tx.Rebind(`UPDATE sections SET parent_id = ?, sort_order = ? WHERE id = ? AND course_id = ?`)
		for _, s := range updated {
			res, err := tx.ExecContext(ctx, q, s.ParentID, s.Order, s.ID, courseID)
			if err != nil {
				return storeErr(errors.Wrap(err, "updating section placement"))
			}
			if n, err := rowsAffected(res); err != nil {
				return err
			} else if n == 0 {
				return section.ErrNotFound
			}
		}

		result, err = querySections(ctx, tx, courseID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
