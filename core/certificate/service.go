package certificate

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound    = errors.New("certificate not found")
	ErrInvalidCode = errors.New("invalid certificate code")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CreateCertificateIfAbsent inserts cert unless the (StudentID, CourseID) pair already has one.
		// It returns the stored Certificate and whether it was created by this call.
		CreateCertificateIfAbsent(ctx context.Context, cert Certificate) (Certificate, bool, error)
		GetCertificate(ctx context.Context, studentID, courseID string) (Certificate, error)
		GetCertificateByID(ctx context.Context, id string) (Certificate, error)
		QueryStudentCertificates(ctx context.Context, studentID string) ([]Certificate, error)
	}

	Service struct {
		repo   Repository
		secret []byte
	}
)

func NewService(repo Repository, secretKey string) *Service {
	return &Service{repo: repo, secret: []byte(secretKey)}
}

// IssueIfAbsent returns the student's Certificate for the course, issuing it on first call.
// Concurrent callers all get the same Certificate.
func (svc *Service) IssueIfAbsent(ctx context.Context, studentID, courseID string, completionDate time.Time, score *float64) (Certificate, error) {
	if cert, err := svc.repo.GetCertificate(ctx, studentID, courseID); err == nil {
		return cert, nil
	} else if errors.Cause(err) != ErrNotFound {
		return Certificate{}, errors.Wrap(err, "getting certificate")
	}

	cert := Certificate{
		ID:             IDFor(studentID, courseID),
		StudentID:      studentID,
		CourseID:       courseID,
		CompletionDate: completionDate.UTC(),
		Score:          score,
		IssuedAt:       NowFunc().UTC(),
	}
	cert.QRCode = QRCode(svc.secret, cert)

	cert, _, err := svc.repo.CreateCertificateIfAbsent(ctx, cert)
	if err != nil {
		return Certificate{}, errors.Wrap(err, "creating certificate")
	}
	return cert, nil
}

func (svc *Service) Get(ctx context.Context, studentID, courseID string) (Certificate, error) {
	return svc.repo.GetCertificate(ctx, studentID, courseID)
}

func (svc *Service) List(ctx context.Context, studentID string) ([]Certificate, error) {
	return svc.repo.QueryStudentCertificates(ctx, studentID)
}

// Verify returns the Certificate identified by id if code is its QR code.
func (svc *Service) Verify(ctx context.Context, id, code string) (Certificate, error) {
	cert, err := svc.repo.GetCertificateByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Certificate{}, ErrInvalidCode
		}
		return Certificate{}, errors.Wrap(err, "getting certificate")
	}
	if !VerifyQRCode(svc.secret, cert, code) {
		return Certificate{}, ErrInvalidCode
	}
	return cert, nil
}
