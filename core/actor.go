package core

// Actor is the authenticated caller of an operation, as resolved by the presentation layer.
type Actor struct {
	ID           string
	Email        string
	IsAdmin      bool
	IsInstructor bool
}

// CanActFor reports whether the Actor may act on behalf of studentID.
func (a Actor) CanActFor(studentID string) bool {
	return a.IsAdmin || (a.ID != "" && a.ID == studentID)
}

// CanAuthor reports whether the Actor may edit course structure.
func (a Actor) CanAuthor() bool {
	return a.IsAdmin || a.IsInstructor
}
