package certificate

import (
	"crypto/subtle"
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const qrPrefix = "MAENDELEO-CERT:"

var (
	idNamespace = uuid.MustParse("3c1f6d8e-58a2-4b8e-a0d5-2f2b9e7f4c61")
	qrEncoding  = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// IDFor returns the deterministic Certificate ID of a (student, course) pair.
func IDFor(studentID, courseID string) string {
	return uuid.NewSHA1(idNamespace, []byte(studentID+"\x00"+courseID)).String()
}

// QRCode returns the verification code printed on a Certificate: a keyed BLAKE2b digest of its identity.
func QRCode(secret []byte, cert Certificate) string {
	key := secret
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		panic(err) // key length is bounded above
	}
	_, _ = h.Write([]byte(strings.Join([]string{cert.ID, cert.StudentID, cert.CourseID}, "|")))
	return qrPrefix + qrEncoding.EncodeToString(h.Sum(nil)[:20])
}

// VerifyQRCode reports whether code was issued for cert.
func VerifyQRCode(secret []byte, cert Certificate, code string) bool {
	want := QRCode(secret, cert)
	return subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1
}
