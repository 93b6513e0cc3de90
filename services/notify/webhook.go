package notify

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/rollup"
)

const (
	SignatureHeader = "X-Maendeleo-Signature"
	EventHeader     = "X-Maendeleo-Event"

	completedEvent = "course.completed"
)

// Webhook POSTs completion events as JSON to an external endpoint.
type Webhook struct {
	client *resty.Client
	url    string
	secret []byte
}

var _ rollup.CompletionListener = (*Webhook)(nil)

func NewWebhook(conf *core.Config) *Webhook {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("User-Agent", conf.AppName+"/"+conf.Build)

	return &Webhook{
		client: client,
		url:    conf.Notify.WebhookURL,
		secret: []byte(conf.Notify.WebhookSecret),
	}
}

// Sign returns the hex keyed BLAKE2b-256 of body. Receivers recompute it to authenticate deliveries.
func Sign(secret, body []byte) (string, error) {
	if len(secret) > blake2b.Size {
		sum := blake2b.Sum256(secret)
		secret = sum[:]
	}
	h, err := blake2b.New256(secret)
	if err != nil {
		return "", err
	}
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (wh *Webhook) CourseCompleted(ctx context.Context, ev rollup.CompletionEvent) error {
	if wh.url == "" {
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encoding completion event")
	}
	sig, err := Sign(wh.secret, body)
	if err != nil {
		return errors.Wrap(err, "signing completion event")
	}

	resp, err := wh.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(EventHeader, completedEvent).
		SetHeader(SignatureHeader, sig).
		SetBody(body).
		Post(wh.url)
	if err != nil {
		return errors.Wrap(err, "posting completion webhook")
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return errors.Errorf("completion webhook - status: %d - body: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
