package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oszuidwest/zwfm-voicegate/internal/types"
	"github.com/oszuidwest/zwfm-voicegate/internal/util"
)

// Notifier fans session and upload outcomes out to the configured channels.
type Notifier struct {
	station    string
	webhookURL string
	graph      types.GraphConfig

	// mu protects graphClient
	mu          sync.Mutex
	graphClient *GraphClient
}

// NewNotifier returns a Notifier for the given channels. Empty channels are skipped.
func NewNotifier(station, webhookURL string, graph types.GraphConfig) *Notifier {
	if station == "" {
		station = AppName
	}
	return &Notifier{station: station, webhookURL: webhookURL, graph: graph}
}

// Enabled reports whether any channel is configured.
func (n *Notifier) Enabled() bool {
	return util.IsConfigured(n.webhookURL) || IsConfigured(&n.graph)
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *Notifier) getOrCreateGraphClient() (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(&n.graph)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// SessionEnded notifies every channel of a stopped or failed session and
// waits for the deliveries to finish. Failures are logged.
func (n *Notifier) SessionEnded(ctx context.Context, st *types.SessionStatus) {
	subject, body := sessionEmail(n.station, st)
	n.dispatch(
		func() error { return SendSessionWebhook(ctx, n.webhookURL, n.station, st) },
		func() error { return n.sendEmail(ctx, subject, body) },
	)
}

// UploadFailed notifies every channel that an upload was abandoned.
func (n *Notifier) UploadFailed(ctx context.Context, path string, uploadErr error) {
	subject, body := uploadFailedEmail(n.station, path, uploadErr)
	n.dispatch(
		func() error { return SendUploadFailedWebhook(ctx, n.webhookURL, n.station, path, uploadErr) },
		func() error { return n.sendEmail(ctx, subject, body) },
	)
}

func (n *Notifier) dispatch(webhook, email func() error) {
	var wg sync.WaitGroup
	if util.IsConfigured(n.webhookURL) {
		wg.Go(func() { logNotifyResult(webhook, "webhook") })
	}
	if IsConfigured(&n.graph) {
		wg.Go(func() { logNotifyResult(email, "email") })
	}
	wg.Wait()
}

// sendEmail handles the common email sending infrastructure.
func (n *Notifier) sendEmail(ctx context.Context, subject, body string) error {
	client, err := n.getOrCreateGraphClient()
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	recipients := ParseRecipients(n.graph.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMail(ctx, recipients, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}
	return nil
}

// Test sends a test message on every configured channel and returns all failures.
func (n *Notifier) Test(ctx context.Context) error {
	var errs []error
	if util.IsConfigured(n.webhookURL) {
		if err := SendTestWebhook(ctx, n.webhookURL, n.station); err != nil {
			errs = append(errs, util.WrapError("send test webhook", err))
		}
	}
	if IsConfigured(&n.graph) {
		if err := ValidateConfig(&n.graph); err != nil {
			errs = append(errs, fmt.Errorf("email configuration error: %w", err))
		} else if err := n.sendEmail(ctx, "[TEST] "+n.station, fmt.Sprintf(
			"Test email from %s.\n\nTime: %s\n\nMicrosoft Graph configuration is working correctly.",
			AppName, util.HumanTime())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
