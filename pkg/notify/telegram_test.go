package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haoxu/ivarb/pkg/models"
)

func sampleSignal() *models.ArbitrageSignal {
	return &models.ArbitrageSignal{
		Instrument:    "copper",
		Direction:     models.LongDomesticShortForeign,
		Strength:      models.StrengthStrong,
		IVDiff:        12.5,
		DomesticIV:    18.0,
		ForeignIV:     30.5,
		DomesticPrice: 103000,
		ForeignPrice:  4.70,
		DomesticUnit:  "CNY/tonne",
		ForeignUnit:   "USD/pound",
		Contracts: models.ContractLegs{
			DomesticCall:  "CU2604C103000",
			DomesticPut:   "CU2604P103000",
			ForeignCall:   "HGJ26C470",
			ForeignPut:    "HGJ26P470",
			Authoritative: true,
		},
		Lots:           models.LotAdvice{DomesticLots: 16, ForeignLots: 8, HedgeRatio: 113.4},
		ExpectedProfit: 8000,
		Timestamp:      time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestRenderOpenSignal(t *testing.T) {
	text := RenderOpenSignal(sampleSignal())

	for _, want := range []string{
		"copper",
		"+12.50%",
		"CU2604C103000",
		"HGJ26P470",
		"buy domestic options / sell foreign options",
		"STRONG",
		"16 lots",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered signal missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "placeholders") {
		t.Error("authoritative signal carries the placeholder warning")
	}
}

func TestRenderOpenSignalPlaceholderWarning(t *testing.T) {
	sig := sampleSignal()
	sig.Contracts.Authoritative = false
	text := RenderOpenSignal(sig)
	if !strings.Contains(text, "placeholders") {
		t.Error("non-authoritative signal must warn about placeholder codes")
	}
}

func TestRenderCloseSignal(t *testing.T) {
	pos := &models.Position{
		Instrument:   "copper",
		OpenTime:     time.Date(2026, time.February, 20, 10, 0, 0, 0, time.UTC),
		Direction:    models.LongDomesticShortForeign,
		OpenIVDiff:   9.0,
		DomesticCall: "CU2604C103000",
		DomesticPut:  "CU2604P103000",
		ForeignCall:  "HGJ26C470",
		ForeignPut:   "HGJ26P470",
	}
	text := RenderCloseSignal(&models.CloseSignal{
		Position:      pos,
		Reason:        models.CloseProfitTarget,
		Detail:        "IV spread converged to 4.0%, profit target reached",
		CurrentIVDiff: 4.0,
		IVDiffChange:  -5.0,
		DaysToExpiry:  40,
		EstimatedPnL:  4000,
		Urgency:       models.UrgencyMedium,
		Timestamp:     time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC),
	})

	for _, want := range []string{
		"copper",
		"profit target reached",
		"recommended",
		"+4000",
		"CU2604C103000",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered close signal missing %q:\n%s", want, text)
		}
	}
}

func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		r.ParseForm()
		gotForm = map[string]string{
			"chat_id":    r.PostFormValue("chat_id"),
			"text":       r.PostFormValue("text"),
			"parse_mode": r.PostFormValue("parse_mode"),
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	tg := NewTelegram("token123", "chat456", logger)
	tg.baseURL = srv.URL

	if err := tg.Send(context.Background(), "<b>hello</b>"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if gotPath != "/bottoken123/sendMessage" {
		t.Errorf("path = %q, want /bottoken123/sendMessage", gotPath)
	}
	if gotForm["chat_id"] != "chat456" {
		t.Errorf("chat_id = %q, want chat456", gotForm["chat_id"])
	}
	if gotForm["parse_mode"] != "HTML" {
		t.Errorf("parse_mode = %q, want HTML", gotForm["parse_mode"])
	}
}

func TestTelegramPlainTextRetry(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		calls = append(calls, r.PostFormValue("parse_mode"))
		if r.PostFormValue("parse_mode") == "HTML" {
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "can't parse entities"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	tg := NewTelegram("t", "c", logger)
	tg.baseURL = srv.URL

	if err := tg.Send(context.Background(), "<b>broken <markup"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("got %d requests, want 2 (HTML then plain)", len(calls))
	}
	if calls[1] != "" {
		t.Errorf("retry parse_mode = %q, want empty", calls[1])
	}
}
