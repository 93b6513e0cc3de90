package core

// Logger is any leveled logger the app can report to.
// args may carry errors, extra key/values (map[string]interface{}) or the acting Actor.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
