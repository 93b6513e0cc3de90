package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/maendeleo/core/certificate"
)

type certificateRepository struct {
	db *DB
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(db *DB) *certificateRepository {
	return &certificateRepository{db: db}
}

func (repo *certificateRepository) CreateCertificateIfAbsent(_ context.Context, cert certificate.Certificate) (certificate.Certificate, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := pairKey{cert.StudentID, cert.CourseID}
	if stored, ok := repo.db.certificates[key]; ok {
		return stored, false, nil
	}
	repo.db.certificates[key] = cert
	return cert, true, nil
}

func (repo *certificateRepository) GetCertificate(_ context.Context, studentID, courseID string) (certificate.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cert, ok := repo.db.certificates[pairKey{studentID, courseID}]; ok {
		return cert, nil
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) GetCertificateByID(_ context.Context, id string) (certificate.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, cert := range repo.db.certificates {
		if cert.ID == id {
			return cert, nil
		}
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) QueryStudentCertificates(_ context.Context, studentID string) ([]certificate.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	certs := make([]certificate.Certificate, 0)
	for _, cert := range repo.db.certificates {
		if cert.StudentID == studentID {
			certs = append(certs, cert)
		}
	}
	sort.Slice(certs, func(i, j int) bool {
		return certs[i].IssuedAt.After(certs[j].IssuedAt)
	})
	return certs, nil
}
