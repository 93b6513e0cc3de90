package rollup

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/core/section"
)

// NodeProgress is the rollup of a section's subtree, the section itself included.
type NodeProgress struct {
	SectionID          string          `json:"section_id"`
	Title              string          `json:"title"`
	Depth              int             `json:"depth"`
	IsCompleted        bool            `json:"is_completed"`
	SectionPct         int             `json:"section_pct"`
	CompletedSections  int             `json:"completed_sections"`
	TotalSections      int             `json:"total_sections"`
	CompletionPct      int             `json:"completion_pct"`
	TimeSpentSec       int64           `json:"time_spent_sec"`
	DurationWatchedSec int64           `json:"duration_watched_sec"`
	Children           []*NodeProgress `json:"children,omitempty"`
}

// TreeProgress computes the student's rollup for every subtree of the course.
func (svc *Service) TreeProgress(ctx context.Context, studentID, courseID string) ([]*NodeProgress, error) {
	sections, err := svc.sections.QueryCourseSections(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying course sections")
	}
	forest, err := section.BuildTree(sections)
	if err != nil {
		return nil, errors.Wrap(err, "building course tree")
	}
	if len(sections) == 0 {
		return []*NodeProgress{}, nil
	}

	ids := make([]string, 0, len(sections))
	for _, s := range sections {
		ids = append(ids, s.ID)
	}
	entries, err := svc.ledger.QueryStudentProgress(ctx, studentID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "querying student progress")
	}
	return rollupForest(forest, entries), nil
}

func rollupForest(forest section.Forest, entries []progress.SectionProgress) []*NodeProgress {
	bySection := make(map[string]progress.SectionProgress, len(entries))
	for _, e := range entries {
		bySection[e.SectionID] = e
	}

	var build func(n *section.Node, depth int) *NodeProgress
	build = func(n *section.Node, depth int) *NodeProgress {
		np := &NodeProgress{
			SectionID:     n.ID,
			Title:         n.Title,
			Depth:         depth,
			TotalSections: 1,
		}
		if e, ok := bySection[n.ID]; ok {
			np.IsCompleted = e.IsCompleted
			np.SectionPct = e.CompletionPct
			np.TimeSpentSec = e.TimeSpentSec
			np.DurationWatchedSec = e.DurationWatchedSec
			if e.IsCompleted {
				np.CompletedSections = 1
			}
		}
		for _, child := range n.Children {
			cp := build(child, depth+1)
			np.Children = append(np.Children, cp)
			np.CompletedSections += cp.CompletedSections
			np.TotalSections += cp.TotalSections
			np.TimeSpentSec += cp.TimeSpentSec
			np.DurationWatchedSec += cp.DurationWatchedSec
		}
		np.CompletionPct = progress.Percent(np.CompletedSections, np.TotalSections)
		return np
	}

	out := make([]*NodeProgress, 0, len(forest))
	for _, root := range forest {
		out = append(out, build(root, 0))
	}
	return out
}
