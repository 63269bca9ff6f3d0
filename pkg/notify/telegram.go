// Package notify delivers rendered signal messages to a Telegram chat.
// Formatting lives here, next to delivery: the rest of the system hands
// over domain objects and never deals in message markup.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haoxu/ivarb/pkg/models"
)

// Notifier is what the monitor loop depends on; delivery failures are the
// notifier's to report, never to panic over.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Telegram sends HTML-formatted messages through the Bot API. If Telegram
// rejects the formatting, the message is retried once as plain text so an
// alert is never lost to a markup bug.
type Telegram struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewTelegram(token, chatID string, logger *logrus.Logger) *Telegram {
	if logger == nil {
		logger = logrus.New()
	}
	return &Telegram{
		baseURL:    "https://api.telegram.org",
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	if err := t.send(ctx, text, "HTML"); err != nil {
		t.logger.WithError(err).Warn("HTML send failed, retrying as plain text")
		plain := strings.NewReplacer("<b>", "", "</b>", "", "<code>", "", "</code>", "").Replace(text)
		return t.send(ctx, plain, "")
	}
	return nil
}

func (t *Telegram) send(ctx context.Context, text, parseMode string) error {
	form := url.Values{
		"chat_id": {t.chatID},
		"text":    {text},
	}
	if parseMode != "" {
		form.Set("parse_mode", parseMode)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding telegram response: %w", err)
	}
	if !body.OK {
		return fmt.Errorf("telegram rejected message: %s", body.Description)
	}
	return nil
}

var directionText = map[models.SignalDirection]string{
	models.LongDomesticShortForeign: "buy domestic options / sell foreign options",
	models.ShortDomesticLongForeign: "sell domestic options / buy foreign options",
}

var strengthText = map[models.SignalStrength]string{
	models.StrengthStrong: "STRONG",
	models.StrengthMedium: "medium",
	models.StrengthWeak:   "weak",
}

// RenderOpenSignal formats an arbitrage open signal for delivery.
func RenderOpenSignal(sig *models.ArbitrageSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>[%s] volatility arbitrage signal</b>\n\n", sig.Instrument)
	fmt.Fprintf(&b, "%s\n\n", sig.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "<b>Market</b>\n")
	fmt.Fprintf(&b, "domestic: %.2f %s, IV %.2f%%\n", sig.DomesticPrice, sig.DomesticUnit, sig.DomesticIV)
	fmt.Fprintf(&b, "foreign: %.4f %s, IV %.2f%%\n", sig.ForeignPrice, sig.ForeignUnit, sig.ForeignIV)
	fmt.Fprintf(&b, "<b>IV spread: %+.2f%%</b>\n\n", sig.IVDiff)
	fmt.Fprintf(&b, "<b>Signal</b>\n")
	fmt.Fprintf(&b, "direction: %s\n", directionText[sig.Direction])
	fmt.Fprintf(&b, "strength: %s\n", strengthText[sig.Strength])
	fmt.Fprintf(&b, "est. net profit: %.0f per hedge set\n\n", sig.ExpectedProfit)

	fmt.Fprintf(&b, "<b>Contracts</b>\n")
	fmt.Fprintf(&b, "domestic: <code>%s</code> / <code>%s</code>\n", sig.Contracts.DomesticCall, sig.Contracts.DomesticPut)
	fmt.Fprintf(&b, "foreign: <code>%s</code> / <code>%s</code>\n", sig.Contracts.ForeignCall, sig.Contracts.ForeignPut)
	if !sig.Contracts.Authoritative {
		fmt.Fprintf(&b, "(contract codes are placeholders, verify before trading)\n")
	}
	if sig.Lots.ForeignLots > 0 {
		fmt.Fprintf(&b, "\n<b>Sizing</b>\n")
		fmt.Fprintf(&b, "domestic %d lots vs foreign %d lots (hedge ratio %.2f%%)\n",
			sig.Lots.DomesticLots, sig.Lots.ForeignLots, sig.Lots.HedgeRatio)
	}
	return b.String()
}

var urgencyText = map[models.Urgency]string{
	models.UrgencyHigh:   "URGENT",
	models.UrgencyMedium: "recommended",
	models.UrgencyLow:    "optional",
}

// RenderCloseSignal formats a close request for delivery.
func RenderCloseSignal(sig *models.CloseSignal) string {
	pos := sig.Position
	var b strings.Builder
	fmt.Fprintf(&b, "<b>[%s] close signal</b>\n\n", pos.Instrument)
	fmt.Fprintf(&b, "%s\n\n", sig.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "<b>Position</b>\n")
	fmt.Fprintf(&b, "opened: %s\n", pos.OpenTime.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "open IV spread: %+.2f%%\n", pos.OpenIVDiff)
	fmt.Fprintf(&b, "current IV spread: %+.2f%% (change %+.2f%%)\n", sig.CurrentIVDiff, sig.IVDiffChange)
	fmt.Fprintf(&b, "days to expiry: %d\n\n", sig.DaysToExpiry)
	fmt.Fprintf(&b, "<b>Close</b>\n")
	fmt.Fprintf(&b, "reason: %s\n", sig.Detail)
	fmt.Fprintf(&b, "urgency: %s\n", urgencyText[sig.Urgency])
	fmt.Fprintf(&b, "est. P&amp;L: %+.0f\n\n", sig.EstimatedPnL)
	fmt.Fprintf(&b, "<b>Legs to unwind</b>\n")
	fmt.Fprintf(&b, "domestic: <code>%s</code> / <code>%s</code>\n", pos.DomesticCall, pos.DomesticPut)
	fmt.Fprintf(&b, "foreign: <code>%s</code> / <code>%s</code>\n", pos.ForeignCall, pos.ForeignPut)
	return b.String()
}

// RenderStartup announces the monitor coming up with its instrument set.
func RenderStartup(instruments []models.InstrumentSpec, interval time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>IV arbitrage monitor started</b>\n\n")
	fmt.Fprintf(&b, "%s\n\n<b>Instruments</b>\n", time.Now().Format("2006-01-02 15:04:05"))
	for _, spec := range instruments {
		fmt.Fprintf(&b, "%s (%s/%s)\n", spec.Name, spec.Domestic.Symbol, spec.Foreign.Symbol)
	}
	fmt.Fprintf(&b, "\npoll interval: %s\n", interval)
	return b.String()
}

// RenderShutdown announces the monitor stopping.
func RenderShutdown(checks int, signals int) string {
	return fmt.Sprintf("<b>IV arbitrage monitor stopped</b>\n\n%s\nchecks this run: %d\nsignals this run: %d",
		time.Now().Format("2006-01-02 15:04:05"), checks, signals)
}

// RenderError wraps an operational alert.
func RenderError(detail string) string {
	return fmt.Sprintf("<b>monitor error</b>\n\n%s", detail)
}
