package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/quantrail/trendscan/internal/models"
	"github.com/quantrail/trendscan/internal/storage"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Gold on 5m", "Gold on 5m"},
		{"NG=F", "NG\\=F"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// The bot token validation happens first (network call), so we use a clearly
	// invalid format to exercise the chat ID parsing error path.
	_, err := NewClient("", "not-a-number", 3, time.Second, nil)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestStatusText(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	now := time.Now()
	records := []*models.TrendRecord{
		{Instrument: "GC=F", Direction: models.DirectionBullish, MaxTimeframe: "15m",
			FirstDetected: now, LastUpdated: now, TrendStrength: 2},
		{Instrument: "CL=F", Direction: models.DirectionBearish, MaxTimeframe: "5m",
			FirstDetected: now, LastUpdated: now, TrendStrength: 1},
	}
	for _, rec := range records {
		if err := store.Put(rec); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.AppendAlert(models.AlertRecord{
		ID: "a1", Timestamp: now, Message: "🎯 NEW BULLISH CROSSOVER: Gold on 15m",
	}); err != nil {
		t.Fatal(err)
	}

	c := &Client{store: store}
	got := c.statusText(now)

	if !strings.Contains(got, "Active trends: 2") {
		t.Errorf("statusText missing trend count: %q", got)
	}
	if !strings.Contains(got, "Recent alerts:") ||
		!strings.Contains(got, "🎯 NEW BULLISH CROSSOVER: Gold on 15m") {
		t.Errorf("statusText missing alert history: %q", got)
	}
	if !strings.Contains(got, "GC=F bullish at 15m (strength 2)") {
		t.Errorf("statusText missing gold line: %q", got)
	}
	if !strings.Contains(got, "CL=F bearish at 5m (strength 1)") {
		t.Errorf("statusText missing crude line: %q", got)
	}
	// Records sort by key, so the crude oil line comes first.
	if strings.Index(got, "CL=F") > strings.Index(got, "GC=F") {
		t.Errorf("statusText not sorted: %q", got)
	}
}

func TestStatusText_Empty(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	c := &Client{store: store}
	if got := c.statusText(time.Now()); !strings.Contains(got, "No active trends") {
		t.Errorf("statusText = %q", got)
	}

	// A faded trend leaves no record, but its history still shows up.
	if err := store.AppendAlert(models.AlertRecord{
		ID: "a1", Timestamp: time.Now(), Message: "⚠️ Gold bullish trend faded at 15m",
	}); err != nil {
		t.Fatal(err)
	}
	if got := c.statusText(time.Now()); !strings.Contains(got, "faded at 15m") {
		t.Errorf("statusText missing history without active trends: %q", got)
	}
}
