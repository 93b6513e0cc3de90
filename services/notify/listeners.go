package notify

import (
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/rollup"
	emailsvc "github.com/trezcool/maendeleo/services/email"
)

// Backends
const (
	BackendConsole  = "console"
	BackendSendgrid = "sendgrid"
	BackendSES      = "ses"
	BackendWebhook  = "webhook"
)

// NewEmailService returns the first email backend listed in the config; nil when none is.
func NewEmailService(conf *core.Config, logger core.Logger) (core.EmailService, error) {
	for _, b := range conf.Notify.Backends {
		switch b {
		case BackendConsole:
			return emailsvc.NewConsoleService(logger, conf), nil
		case BackendSendgrid:
			return emailsvc.NewSendgridService(logger, conf), nil
		case BackendSES:
			svc, err := emailsvc.NewSESService(logger, conf)
			if err != nil {
				return nil, errors.Wrap(err, "setting up SES")
			}
			return svc, nil
		case BackendWebhook:
		default:
			return nil, errors.Errorf("unknown notification backend %q", b)
		}
	}
	return nil, nil
}

// NewListeners returns the completion listeners of the configured backends.
func NewListeners(conf *core.Config, emails core.EmailService, students StudentGetter, courses CourseGetter) []rollup.CompletionListener {
	var listeners []rollup.CompletionListener
	if emails != nil {
		listeners = append(listeners, NewMailer(emails, students, courses, conf))
	}
	for _, b := range conf.Notify.Backends {
		if b == BackendWebhook {
			listeners = append(listeners, NewWebhook(conf))
			break
		}
	}
	return listeners
}
