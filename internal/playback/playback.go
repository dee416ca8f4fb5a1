package playback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Profile names a tone. Announcements map their type onto a profile.
type Profile string

const (
	ProfileCall      Profile = "call"
	ProfileInfo      Profile = "info"
	ProfileWarning   Profile = "warning"
	ProfileEmergency Profile = "emergency"
)

type Speaker interface {
	Say(ctx context.Context, text, locale string) error
}

type SoundPlayer interface {
	Play(ctx context.Context, profile Profile) error
}

// NewSpeaker returns the speech provider named by kind: log, noop, webhook or an
// http(s) URL. Unknown kinds fall back to log.
func NewSpeaker(kind, webhookURL string, l logger.Logger) Speaker {
	switch p := newProvider(kind, webhookURL, "speech", l).(type) {
	case Speaker:
		return p
	default:
		return logProvider{channel: "speech", l: l}
	}
}

func NewSoundPlayer(kind, webhookURL string, l logger.Logger) SoundPlayer {
	switch p := newProvider(kind, webhookURL, "sound", l).(type) {
	case SoundPlayer:
		return p
	default:
		return logProvider{channel: "sound", l: l}
	}
}

func newProvider(kind, webhookURL, channel string, l logger.Logger) any {
	switch kind {
	case "", "log":
		return logProvider{channel: channel, l: l}
	case "noop":
		return Nop{}
	case "webhook":
		if webhookURL == "" {
			return logProvider{channel: channel, l: l}
		}
		return newWebhookProvider(channel, webhookURL)
	default:
		if strings.HasPrefix(kind, "http://") || strings.HasPrefix(kind, "https://") {
			return newWebhookProvider(channel, kind)
		}
		return logProvider{channel: channel, l: l}
	}
}

type logProvider struct {
	channel string
	l       logger.Logger
}

func (p logProvider) Say(ctx context.Context, text, locale string) error {
	p.l.Infof(ctx, "playback.%s: [%s] %s", p.channel, locale, text)
	return nil
}

func (p logProvider) Play(ctx context.Context, profile Profile) error {
	p.l.Infof(ctx, "playback.%s: %s", p.channel, profile)
	return nil
}

// Nop discards everything.
type Nop struct{}

var (
	_ Speaker     = Nop{}
	_ SoundPlayer = Nop{}
)

func (Nop) Say(context.Context, string, string) error { return nil }
func (Nop) Play(context.Context, Profile) error       { return nil }

type webhookProvider struct {
	channel string
	url     string
	client  *http.Client
}

func newWebhookProvider(channel, url string) webhookProvider {
	return webhookProvider{
		channel: channel,
		url:     url,
		client: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (p webhookProvider) Say(ctx context.Context, text, locale string) error {
	return p.post(ctx, map[string]string{
		"channel": p.channel,
		"text":    text,
		"locale":  locale,
	})
}

func (p webhookProvider) Play(ctx context.Context, profile Profile) error {
	return p.post(ctx, map[string]string{
		"channel": p.channel,
		"profile": string(profile),
	})
}

func (p webhookProvider) post(ctx context.Context, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s webhook rejected request: %s", p.channel, resp.Status)
	}
	return nil
}
