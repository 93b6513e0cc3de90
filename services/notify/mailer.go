package notify

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/rollup"
	"github.com/trezcool/maendeleo/core/student"
)

const completedTemplate = "course_completed"

type (
	StudentGetter interface {
		GetStudent(ctx context.Context, id string) (student.Student, error)
	}

	CourseGetter interface {
		GetCourse(ctx context.Context, id string) (enrollment.Course, error)
	}

	completedData struct {
		StudentName   string
		CourseID      string
		CourseTitle   string
		CompletedAt   time.Time
		CertificateID string
	}

	// Mailer emails the student when a course is completed.
	Mailer struct {
		emails          core.EmailService
		students        StudentGetter
		courses         CourseGetter
		frontendBaseURL string
	}
)

var _ rollup.CompletionListener = (*Mailer)(nil)

func NewMailer(emails core.EmailService, students StudentGetter, courses CourseGetter, conf *core.Config) *Mailer {
	return &Mailer{
		emails:          emails,
		students:        students,
		courses:         courses,
		frontendBaseURL: conf.Notify.FrontendBaseURL,
	}
}

// CourseCompleted queues the congratulation email. Students without contact details are skipped.
func (m *Mailer) CourseCompleted(ctx context.Context, ev rollup.CompletionEvent) error {
	s, err := m.students.GetStudent(ctx, ev.StudentID)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "getting student")
	}
	c, err := m.courses.GetCourse(ctx, ev.CourseID)
	if err != nil {
		return errors.Wrap(err, "getting course")
	}

	title := c.Title
	if title == "" {
		title = c.ID
	}
	m.emails.SendMessages(&core.EmailMessage{
		To:              []mail.Address{s.Address()},
		Subject:         "Course completed: " + title,
		TemplateName:    completedTemplate,
		FrontendBaseURL: m.frontendBaseURL,
		TemplateData: completedData{
			StudentName:   s.Name,
			CourseID:      c.ID,
			CourseTitle:   title,
			CompletedAt:   ev.CompletedAt,
			CertificateID: ev.CertificateID,
		},
	})
	return nil
}
