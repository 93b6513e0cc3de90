package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/rollup"
	"github.com/trezcool/maendeleo/core/student"
	"github.com/trezcool/maendeleo/core/tracker"
)

var (
	errHelp  = errors.New("help provided")
	commands = []string{"migrate", "addcourse", "addstudent", "recompute", "reconcile"}
)

type (
	CourseService interface {
		SaveCourse(ctx context.Context, nc enrollment.NewCourse) (enrollment.Course, error)
	}

	StudentService interface {
		Save(ctx context.Context, ns student.NewStudent) (student.Student, error)
	}

	Reconciler interface {
		Recompute(ctx context.Context, studentID, courseID string) (rollup.Result, error)
		Reconcile(ctx context.Context, batchSize int) (tracker.ReconcileReport, error)
	}

	commandLine struct {
		db         *sql.DB
		engine     string
		courses    CourseService
		students   StudentService
		reconciler Reconciler
		batchSize  int
		out        io.Writer
		table      bool // human readable output; JSON otherwise
	}
)

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]                          - run a goose migration command (up, down, status, ...)")
	fmt.Println("  addcourse -id ID -title TITLE [-max N] [-deadline RFC3339] - create or update a course")
	fmt.Println("  addstudent -id ID -name NAME -email EMAIL        - create or update a student's contact details")
	fmt.Println("  recompute -student ID -course ID                  - recompute a student's course progress")
	fmt.Println("  reconcile [-batch N]                              - rerun unfinished course rollups")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addCourseCmd := flag.NewFlagSet("addcourse", flag.ContinueOnError)
	addCourseID := addCourseCmd.String("id", "", "The course ID.")
	addCourseTitle := addCourseCmd.String("title", "", "The course title.")
	addCourseMax := addCourseCmd.Int("max", 0, "The maximum number of students (0: unlimited).")
	addCourseDeadline := addCourseCmd.String("deadline", "", "The enrollment deadline (RFC3339).")

	addStudentCmd := flag.NewFlagSet("addstudent", flag.ContinueOnError)
	addStudentID := addStudentCmd.String("id", "", "The student ID issued by the identity provider.")
	addStudentName := addStudentCmd.String("name", "", "The student's name.")
	addStudentEmail := addStudentCmd.String("email", "", "The student's email address.")

	recomputeCmd := flag.NewFlagSet("recompute", flag.ContinueOnError)
	recomputeStudent := recomputeCmd.String("student", "", "The student ID.")
	recomputeCourse := recomputeCmd.String("course", "", "The course ID.")

	reconcileCmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	reconcileBatch := reconcileCmd.Int("batch", cli.batchSize, "The maximum number of enrollments per query.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addcourse":
		if err := addCourseCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addCourseID == "" || *addCourseTitle == "" {
			addCourseCmd.Usage()
			return errHelp
		}
		nc := enrollment.NewCourse{ID: *addCourseID, Title: *addCourseTitle, MaxStudents: *addCourseMax}
		if *addCourseDeadline != "" {
			deadline, err := time.Parse(time.RFC3339, *addCourseDeadline)
			if err != nil {
				return fmt.Errorf("invalid deadline %q: %v", *addCourseDeadline, err)
			}
			nc.EnrollmentDeadline = &deadline
		}
		return cli.addCourse(nc)

	case "addstudent":
		if err := addStudentCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addStudentID == "" || *addStudentEmail == "" {
			addStudentCmd.Usage()
			return errHelp
		}
		return cli.addStudent(student.NewStudent{ID: *addStudentID, Name: *addStudentName, Email: *addStudentEmail})

	case "recompute":
		if err := recomputeCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *recomputeStudent == "" || *recomputeCourse == "" {
			recomputeCmd.Usage()
			return errHelp
		}
		return cli.recompute(*recomputeStudent, *recomputeCourse)

	case "reconcile":
		if err := reconcileCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *reconcileBatch <= 0 {
			reconcileCmd.Usage()
			return errHelp
		}
		return cli.reconcile(*reconcileBatch)

	default:
		if matches := difflib.GetCloseMatches(args[1], commands, 1, 0.6); len(matches) > 0 {
			_, _ = fmt.Fprintf(cli.out, "unknown command %q, did you mean %q?\n", args[1], matches[0])
		}
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) addCourse(nc enrollment.NewCourse) error {
	c, err := cli.courses.SaveCourse(context.Background(), nc)
	if err != nil {
		return err
	}
	deadline := "-"
	if c.HasDeadline() {
		deadline = c.EnrollmentDeadline.Format(time.RFC3339)
	}
	return cli.print(c, [][2]string{
		{"ID", c.ID},
		{"Title", c.Title},
		{"Max students", fmt.Sprint(c.MaxStudents)},
		{"Enrolled", fmt.Sprint(c.EnrolledCount)},
		{"Deadline", deadline},
	})
}

func (cli *commandLine) addStudent(ns student.NewStudent) error {
	s, err := cli.students.Save(context.Background(), ns)
	if err != nil {
		return err
	}
	return cli.print(s, [][2]string{
		{"ID", s.ID},
		{"Name", s.Name},
		{"Email", s.Email},
	})
}

func (cli *commandLine) recompute(studentID, courseID string) error {
	res, err := cli.reconciler.Recompute(context.Background(), studentID, courseID)
	if err != nil {
		return err
	}
	certID := "-"
	if res.Certificate != nil {
		certID = res.Certificate.ID
	}
	return cli.print(res, [][2]string{
		{"Student", res.StudentID},
		{"Course", res.CourseID},
		{"Enrolled", fmt.Sprint(res.Enrolled)},
		{"Status", res.Status},
		{"Sections", fmt.Sprintf("%d/%d", res.CompletedSections, res.TotalSections)},
		{"Completion", fmt.Sprintf("%d%%", res.CompletionPct)},
		{"Completed now", fmt.Sprint(res.Transitioned)},
		{"Certificate", certID},
	})
}

func (cli *commandLine) reconcile(batchSize int) error {
	report, err := cli.reconciler.Reconcile(context.Background(), batchSize)
	if err != nil {
		return err
	}
	return cli.print(report, [][2]string{
		{"Checked", fmt.Sprint(report.Checked)},
		{"Completed", fmt.Sprint(report.Completed)},
		{"Certificates", fmt.Sprint(report.Certificates)},
		{"Failed", fmt.Sprint(report.Failed)},
	})
}

// print writes rows as an aligned table on terminals, v as JSON otherwise.
func (cli *commandLine) print(v interface{}, rows [][2]string) error {
	if !cli.table {
		enc := json.NewEncoder(cli.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return w.Flush()
}
