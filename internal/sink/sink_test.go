package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/devblac/indexkit/internal/config"
)

func TestSlackSenderRendersTemplate(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]string
		_ = json.Unmarshal(raw, &body)
		got = body["text"]
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender, err := NewSlackSender(server.URL, `{{.RouteID}} {{.Name}} {{short_addr .TxHash}} amount={{field .Fields "amount"}}`)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}

	code, err := sender.Send(context.Background(), EventPayload{
		RouteID: "r1",
		Name:    "c1:Deposit",
		TxHash:  "0x1234567890abcdef",
		Fields:  map[string]any{"amount": "42"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if !strings.Contains(got, "r1 c1:Deposit 0x1234...cdef amount=42") {
		t.Fatalf("unexpected payload: %s", got)
	}
}

func TestDefaultTemplate(t *testing.T) {
	tmpl, err := parseTemplate("")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := executeTemplate(tmpl, EventPayload{RouteID: "r1", Name: "b1:block", Chain: "mainnet", ID: "abc"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "r1 b1:block on mainnet abc" {
		t.Fatalf("unexpected default render: %q", out)
	}
}

func TestWebhookStatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender, err := NewWebhookSender(server.URL, http.MethodPost, "msg", nil)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	code, err := sender.Send(context.Background(), EventPayload{RouteID: "r"})
	if err == nil {
		t.Fatalf("expected error on 502")
	}
	if code != http.StatusBadGateway {
		t.Fatalf("expected status to be reported, got %d", code)
	}
}

func TestWebhookPostsStructuredMatch(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.Header.Get("X-Token") != "t" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender, err := NewWebhookSender(server.URL, "put", "", map[string]string{"X-Token": "t"})
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	code, err := sender.Send(context.Background(), EventPayload{
		RouteID: "r1",
		Name:    "c1:Deposit",
		Chain:   "mainnet",
		ChainID: 1,
		ID:      "abc",
		Fields:  map[string]any{"amount": "42"},
		Event:   struct{ Secret string }{"not sent"},
	})
	if err != nil || code != http.StatusAccepted {
		t.Fatalf("send: code=%d err=%v", code, err)
	}
	if got["route"] != "r1" || got["chainId"] != float64(1) || got["text"] != "r1 c1:Deposit on mainnet abc" {
		t.Fatalf("unexpected body: %v", got)
	}
	if fields, _ := got["fields"].(map[string]any); fields["amount"] != "42" {
		t.Fatalf("fields not forwarded: %v", got)
	}
	if _, ok := got["Event"]; ok {
		t.Fatalf("handler payload must not be posted: %v", got)
	}
}

func TestWebhookRequiresURL(t *testing.T) {
	if _, err := NewWebhookSender("", "", "", nil); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestFromConfig(t *testing.T) {
	senders, err := FromConfig([]config.Sink{
		{ID: "s", Type: "slack", WebhookURL: "http://example.invalid/s"},
		{ID: "w", Type: "Webhook", URL: "http://example.invalid/w", Method: "put"},
	})
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if len(senders) != 2 {
		t.Fatalf("expected 2 senders, got %d", len(senders))
	}
	if got := senders["w"].(*httpSender).method; got != http.MethodPut {
		t.Fatalf("method not normalized: %s", got)
	}

	if _, err := FromConfig([]config.Sink{{ID: "x", Type: "pager"}}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}
