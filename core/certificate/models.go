package certificate

import "time"

// Certificate attests that a student completed a course. There is at most one per (StudentID, CourseID).
type Certificate struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	CourseID       string    `json:"course_id"`
	CompletionDate time.Time `json:"completion_date"`
	Score          *float64  `json:"score,omitempty"`
	QRCode         string    `json:"qr_code"`
	IssuedAt       time.Time `json:"issued_at"`
}
