package relay

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewClientRequiresURL(t *testing.T) {
	client, err := NewClient(Options{})
	if err == nil {
		t.Fatalf("expected error for missing url")
	}
	if client != nil {
		t.Fatalf("expected nil client on configuration error")
	}
	if !strings.Contains(err.Error(), "ConfigurationError") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNewClientRejectsMalformedURL(t *testing.T) {
	_, err := NewClient(Options{URL: "://relay"})
	if err == nil {
		t.Fatalf("expected error for malformed url")
	}
	if !strings.Contains(err.Error(), "InvalidURIError") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestClientStartsWithoutConnection(t *testing.T) {
	client := newTestClient(t, "https://relay.example.com")

	if state := client.ReadyState(); state != StateAbsent {
		t.Fatalf("expected ready state %d before any attempt, got %d", StateAbsent, state)
	}
	if client.Connecting() || client.Connected() || client.Closing() || client.Closed() {
		t.Fatalf("no status flag may be set before any attempt")
	}
	if !strings.HasPrefix(client.Name(), "relay-go-"+ClientVersion+"-") {
		t.Fatalf("unexpected client name %q", client.Name())
	}

	info := client.ConnectionInfo()
	if info["ready_state"] != "-1" {
		t.Fatalf("unexpected ready_state %q", info["ready_state"])
	}
	if info["client_name"] != client.Name() || info["client_version"] != ClientVersion {
		t.Fatalf("unexpected identity info %v", info)
	}
	if _, ok := info["connection_id"]; ok {
		t.Fatalf("connection_id must be absent without a connection")
	}
}

func TestSendRequiresTopic(t *testing.T) {
	client := newTestClient(t, "http://"+reserveAddress(t))

	err := client.Send("payload", "")
	if err == nil {
		t.Fatalf("expected error for empty topic")
	}
	if !strings.Contains(err.Error(), "InvalidTopicError") {
		t.Fatalf("unexpected error %v", err)
	}
	if length := client.queue.length(); length != 0 {
		t.Fatalf("queue must stay empty after a rejected send, got %d entries", length)
	}
	if stats := client.Stats(); stats.Queued != 0 {
		t.Fatalf("queued counter must stay zero, got %d", stats.Queued)
	}
}

func TestSubscribeRequiresTopic(t *testing.T) {
	client := newTestClient(t, "http://"+reserveAddress(t))

	err := client.Subscribe("")
	if err == nil {
		t.Fatalf("expected error for empty topic")
	}
	if !strings.Contains(err.Error(), "InvalidTopicError") {
		t.Fatalf("unexpected error %v", err)
	}
	if length := client.queue.length(); length != 0 {
		t.Fatalf("queue must stay empty after a rejected subscribe, got %d entries", length)
	}
}

func TestSendWhileDisconnectedQueuesInOrder(t *testing.T) {
	client := newTestClient(t, "http://"+reserveAddress(t))
	defer client.Close()

	if err := client.Send("first", "jobs"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := client.Send("second", "jobs", true); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := client.Subscribe("alerts"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	entries := client.queue.snapshot()
	if len(entries) != 3 {
		t.Fatalf("expected 3 queued envelopes, got %d", len(entries))
	}
	if entries[0].Type != TypePublish || entries[0].Payload != "first" || entries[0].Silent {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Type != TypePublish || entries[1].Payload != "second" || !entries[1].Silent {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	if entries[2].Type != TypeSubscribe || entries[2].Topic != "alerts" {
		t.Fatalf("unexpected third entry %+v", entries[2])
	}
	if stats := client.Stats(); stats.Queued != 3 || stats.Sent != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestOnReturnsClientForChaining(t *testing.T) {
	client := newTestClient(t, "https://relay.example.com")

	chained := client.On(EventMessage, func(Event) {}).On(EventError, func(Event) {})
	if chained != client {
		t.Fatalf("On must return the receiver")
	}
}

func TestSettersReturnClient(t *testing.T) {
	client := newTestClient(t, "https://relay.example.com")

	chained := client.
		SetLogger(zap.NewNop()).
		SetReconnectDelayStrategy(NewFixedDelayStrategy(time.Second)).
		SetHandshakeTimeout(time.Second).
		SetPingInterval(0)
	if chained != client {
		t.Fatalf("setters must return the receiver")
	}
	if client.SetLogger(nil) != client || client.SetReconnectDelayStrategy(nil) != client || client.SetDialer(nil) != client {
		t.Fatalf("nil arguments must leave the receiver unchanged")
	}
}

func TestNilClientIsInert(t *testing.T) {
	var client *Client

	if state := client.ReadyState(); state != StateAbsent {
		t.Fatalf("nil client ready state must be %d, got %d", StateAbsent, state)
	}
	if err := client.Send("payload", "topic"); err == nil {
		t.Fatalf("nil client send must error")
	}
	if err := client.Subscribe("topic"); err == nil {
		t.Fatalf("nil client subscribe must error")
	}
	if err := client.Open(); err == nil {
		t.Fatalf("nil client open must error")
	}
	client.Close()
	if client.On(EventMessage, func(Event) {}) != nil {
		t.Fatalf("nil client On must return nil")
	}
	if name := client.Name(); name != "" {
		t.Fatalf("nil client name must be empty, got %q", name)
	}
	if stats := client.Stats(); stats != (ClientStats{}) {
		t.Fatalf("nil client stats must be zero, got %+v", stats)
	}
}
