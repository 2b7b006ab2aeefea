package natsutil

import (
	"sort"
	"testing"

	"github.com/nats-io/nats.go"
)

func TestHeaderCarrierSetGet(t *testing.T) {
	msg := &nats.Msg{}
	c := (*natsHeaderCarrier)(msg)

	if c.Get("traceparent") != "" {
		t.Error("empty carrier must return empty value")
	}
	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("got %q", got)
	}
	if msg.Header.Get("traceparent") != "00-abc-def-01" {
		t.Error("carrier must write through to the message header")
	}
}

func TestHeaderCarrierKeys(t *testing.T) {
	msg := &nats.Msg{}
	c := (*natsHeaderCarrier)(msg)
	if keys := c.Keys(); keys != nil {
		t.Errorf("empty carrier keys = %v", keys)
	}

	c.Set("a", "1")
	c.Set("b", "2")
	keys := c.Keys()
	sort.Strings(keys)
	if len(keys) != 2 {
		t.Errorf("keys = %v, want 2 entries", keys)
	}
}
