//go:build integration

package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// These tests need a broker at 127.0.0.1:1883:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func connectAs(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect(%s) error = %v", clientID, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client := connectAs(t, "graylogic-shading-int-track")
	topics := NewTopics("graylogic/int/shading")
	noop := func(string, []byte) error { return nil }

	for _, pattern := range []string{topics.AllSets(), topics.AllSetKeywords()} {
		if err := client.Subscribe(pattern, 1, noop); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", pattern, err)
		}
	}
	if client.SubscriptionCount() != 2 {
		t.Errorf("SubscriptionCount() = %d, want 2", client.SubscriptionCount())
	}

	if err := client.Unsubscribe(topics.AllSets()); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topics.AllSets()) {
		t.Error("HasSubscription() = true after unsubscribe")
	}
}

func TestIntegration_SetRoundtrip(t *testing.T) {
	pub := connectAs(t, "graylogic-shading-int-pub")
	sub := connectAs(t, "graylogic-shading-int-sub")
	topics := NewTopics("graylogic/int/shading")

	type got struct{ blind, keyword, payload string }
	received := make(chan got, 1)
	var once sync.Once

	err := sub.Subscribe(topics.AllSetKeywords(), 1, func(topic string, payload []byte) error {
		blind, keyword, _ := topics.ParseSet(topic)
		once.Do(func() { received <- got{blind, keyword, string(payload)} })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishJSON(topics.SetKeyword("office", "levelOverwrite"), 40, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case g := <-received:
		if g.blind != "office" || g.keyword != "levelOverwrite" || g.payload != "40" {
			t.Errorf("received %+v", g)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestIntegration_OnlineStatus(t *testing.T) {
	connectAs(t, "graylogic-shading-int-status")
	watcher := connectAs(t, "graylogic-shading-int-watch")

	status := make(chan statusPayload, 4)
	err := watcher.Subscribe(Topics{}.SystemStatus(), 1, func(_ string, payload []byte) error {
		var p statusPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		status <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case p := <-status:
		if p.Status != StatusOnline {
			t.Errorf("retained status = %+v, want online", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no retained status received")
	}
}
