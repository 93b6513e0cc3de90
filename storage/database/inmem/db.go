package inmemdb

import (
	"sync"

	"github.com/trezcool/maendeleo/core/certificate"
	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/core/section"
	"github.com/trezcool/maendeleo/core/student"
)

type (
	// pairKey identifies a (student, section|course) row.
	pairKey struct {
		studentID string
		otherID   string
	}

	activityKey struct {
		studentID  string
		sectionID  string
		activityID string
	}

	// DB keeps every table behind one lock, so each repository call is a single atomic step.
	DB struct {
		sync.RWMutex

		sections     map[string]section.Section
		progress     map[pairKey]progress.SectionProgress
		activities   map[activityKey]struct{}
		courses      map[string]enrollment.Course
		enrollments  map[pairKey]enrollment.Enrollment
		certificates map[pairKey]certificate.Certificate
		students     map[string]student.Student
	}
)

func Open() (*DB, error) {
	db := &DB{
		sections:     make(map[string]section.Section),
		progress:     make(map[pairKey]progress.SectionProgress),
		activities:   make(map[activityKey]struct{}),
		courses:      make(map[string]enrollment.Course),
		enrollments:  make(map[pairKey]enrollment.Enrollment),
		certificates: make(map[pairKey]certificate.Certificate),
		students:     make(map[string]student.Student),
	}
	return db, nil
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func copySection(s section.Section) section.Section {
	s.ActivityIDs = copyStrings(s.ActivityIDs)
	return s
}

func copyProgress(sp progress.SectionProgress) progress.SectionProgress {
	if sp.Log != nil {
		sp.Log = append([]progress.Event{}, sp.Log...)
	}
	return sp
}
