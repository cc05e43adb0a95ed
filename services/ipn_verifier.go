package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	PayPalSandboxIPNURL = "https://ipnpb.sandbox.paypal.com/cgi-bin/webscr"
	PayPalLiveIPNURL    = "https://ipnpb.paypal.com/cgi-bin/webscr"

	ipnValidatePrefix = "cmd=_notify-validate&"
	ipnVerified       = "VERIFIED"
	ipnInvalid        = "INVALID"
)

// NotificationVerifier confirms a notification really came from the
// payment processor.
type NotificationVerifier interface {
	Verify(ctx context.Context, raw []byte) error
}

// IPNVerifier posts the notification back to PayPal unchanged, prefixed
// with cmd=_notify-validate, and accepts it only on a VERIFIED answer.
type IPNVerifier struct {
	url        string
	httpClient *http.Client
}

func NewIPNVerifier(url string, timeout time.Duration) *IPNVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IPNVerifier{url: url, httpClient: &http.Client{Timeout: timeout}}
}

// Verify returns nil for VERIFIED, ErrUnverifiedNotification for INVALID
// and a plain error when PayPal could not be asked.
func (v *IPNVerifier) Verify(ctx context.Context, raw []byte) error {
	body := make([]byte, 0, len(ipnValidatePrefix)+len(raw))
	body = append(body, ipnValidatePrefix...)
	body = append(body, raw...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "storefront-ipn-listener")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()

	answer, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return fmt.Errorf("read verification response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verification endpoint returned status %d", resp.StatusCode)
	}

	switch strings.TrimSpace(string(answer)) {
	case ipnVerified:
		return nil
	case ipnInvalid:
		return ErrUnverifiedNotification
	default:
		return fmt.Errorf("%w: unexpected verification answer %q", ErrUnverifiedNotification, strings.TrimSpace(string(answer)))
	}
}
