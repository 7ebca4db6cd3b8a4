// Package alert sends a best-effort SMS notification via a Twilio-style
// gateway when analysis turns up a high-risk event. Dispatch never fails the
// analysis path: missing configuration or a gateway error is logged and
// swallowed.
package alert

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"camguard/internal/config"
)

const (
	gatewayTimeout = 10 * time.Second
	descriptionCap = 100
	gatewayBodyCap = 200
	messagesURLFmt = "https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json"
)

// Dispatcher sends SMS alerts through the configured gateway.
type Dispatcher struct {
	cfg        config.AlertConfig
	httpClient *http.Client
	// toNumber resolves the per-system default destination from the store;
	// nil or a false second return falls back to cfg.DefaultToNumber.
	toNumber func(ctx context.Context) (string, bool)
	// baseURL overrides the Twilio API origin in tests.
	baseURL string
}

// New builds a Dispatcher. toNumber may be nil, in which case only the
// environment default is used.
func New(cfg config.AlertConfig, toNumber func(ctx context.Context) (string, bool)) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: gatewayTimeout},
		toNumber:   toNumber,
	}
}

// messagesURL overrides the gateway origin; used only by tests.
func (d *Dispatcher) messagesURL(baseURL string) {
	d.baseURL = baseURL
}

func (d *Dispatcher) messagesEndpoint() string {
	if d.baseURL != "" {
		return fmt.Sprintf(d.baseURL+"/2010-04-01/Accounts/%s/Messages.json", d.cfg.AccountID)
	}
	return fmt.Sprintf(messagesURLFmt, d.cfg.AccountID)
}

// Send dispatches a high-risk alert. It is intended to be invoked from an
// unawaited goroutine by the caller; it blocks on one HTTP call and never
// returns an error, matching the "never fail the analysis path" requirement.
func (d *Dispatcher) Send(ctx context.Context, streamName, riskLevel, description string) {
	if d.cfg.AccountID == "" {
		log.Printf("[alert] ALERT_GATEWAY_ACCOUNT_ID not set, skipping alert")
		return
	}
	if d.cfg.AuthToken == "" {
		log.Printf("[alert] ALERT_GATEWAY_AUTH_TOKEN not set, skipping alert")
		return
	}
	if d.cfg.FromNumber == "" {
		log.Printf("[alert] ALERT_GATEWAY_FROM_NUMBER not set, skipping alert")
		return
	}

	to := d.resolveToNumber(ctx)
	if to == "" {
		log.Printf("[alert] no destination number configured (store default or ALERT_GATEWAY_TO_NUMBER), skipping alert")
		return
	}

	body := fmt.Sprintf("%s risk on stream %q. %s", riskLevel, streamName, truncate(description, descriptionCap))

	form := url.Values{
		"To":   {to},
		"From": {d.cfg.FromNumber},
		"Body": {body},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.messagesEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		log.Printf("[alert] build request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(d.cfg.AccountID, d.cfg.AuthToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		log.Printf("[alert] gateway request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(resp.Body)
		log.Printf("[alert] gateway returned status %d: %s", resp.StatusCode, truncate(string(text), gatewayBodyCap))
		return
	}

	log.Printf("[alert] sent for stream %q (%s risk)", streamName, riskLevel)
}

func (d *Dispatcher) resolveToNumber(ctx context.Context) string {
	if d.toNumber != nil {
		if n, ok := d.toNumber(ctx); ok && n != "" {
			return n
		}
	}
	return d.cfg.DefaultToNumber
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
