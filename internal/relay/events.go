package relay

import (
	"encoding/json"
	"sort"
	"strings"

	"autotrade-console/internal/models"
)

// Event names on the push channel.
const (
	EventPriceUpdate          = "price_update"
	EventSubscriptionResponse = "subscription_response"
	EventWSStatus             = "ws_status"

	EventSubscribe   = "subscribe_instruments"
	EventUnsubscribe = "unsubscribe_instruments"
	EventGetStatus   = "get_ws_status"
)

// subscriptionRequest is the body of subscribe/unsubscribe.
type subscriptionRequest struct {
	InstrumentKeys []string `json:"instrument_keys"`
}

// SubscriptionResponse acknowledges a subscribe or unsubscribe.
type SubscriptionResponse struct {
	Success        bool     `json:"success"`
	Action         string   `json:"action,omitempty"`
	InstrumentKeys []string `json:"instrument_keys,omitempty"`
	Message        string   `json:"message,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// ServerStatus is the relay's report of its upstream feed.
type ServerStatus struct {
	Connected     bool   `json:"connected"`
	Subscriptions int    `json:"subscriptions"`
	Message       string `json:"message,omitempty"`
	Raw           map[string]interface{}
}

func decodeServerStatus(data json.RawMessage) ServerStatus {
	var s ServerStatus
	_ = json.Unmarshal(data, &s)
	_ = json.Unmarshal(data, &s.Raw)
	if s.Subscriptions == 0 {
		// Some relays report the subscribed keys rather than a count.
		var keyed struct {
			Keys []string `json:"subscribed_instruments"`
		}
		if json.Unmarshal(data, &keyed) == nil {
			s.Subscriptions = len(keyed.Keys)
		}
	}
	return s
}

// rawTick accepts the field names the relay uses for a tick.
type rawTick struct {
	InstrumentKey string           `json:"instrument_key"`
	Key           string           `json:"key"`
	Symbol        string           `json:"symbol"`
	LTP           *float64         `json:"ltp"`
	LastPrice     *float64         `json:"last_price"`
	Change        float64          `json:"change"`
	ChangePercent *float64         `json:"change_percent"`
	PChange       *float64         `json:"pChange"`
	Volume        int64            `json:"volume"`
	Timestamp     models.Timestamp `json:"timestamp"`
}

func (r rawTick) tick() models.PriceTick {
	t := models.PriceTick{
		InstrumentKey: r.InstrumentKey,
		Symbol:        r.Symbol,
		Change:        r.Change,
		Volume:        r.Volume,
		Timestamp:     r.Timestamp,
	}
	if t.InstrumentKey == "" {
		t.InstrumentKey = r.Key
	}
	switch {
	case r.LTP != nil:
		t.LTP = *r.LTP
	case r.LastPrice != nil:
		t.LTP = *r.LastPrice
	}
	switch {
	case r.ChangePercent != nil:
		t.ChangePercent = *r.ChangePercent
	case r.PChange != nil:
		t.ChangePercent = *r.PChange
	}
	return t
}

// DecodeTicks decodes a price_update payload: a single tick, a list of
// ticks, or an object of ticks keyed by instrument key. Ticks without an
// instrument key are dropped.
func DecodeTicks(data json.RawMessage) []models.PriceTick {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var out []models.PriceTick
	add := func(r rawTick, key string) {
		t := r.tick()
		if t.InstrumentKey == "" {
			t.InstrumentKey = key
		}
		if t.InstrumentKey != "" {
			out = append(out, t)
		}
	}

	if trimmed[0] == '[' {
		var list []rawTick
		if json.Unmarshal(data, &list) == nil {
			for _, r := range list {
				add(r, "")
			}
		}
		return out
	}

	var single rawTick
	if err := json.Unmarshal(data, &single); err != nil {
		return nil
	}
	if single.InstrumentKey != "" || single.Key != "" {
		add(single, "")
		return out
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(data, &envelope) == nil && len(envelope.Data) > 0 {
		return DecodeTicks(envelope.Data)
	}

	var keyed map[string]rawTick
	if json.Unmarshal(data, &keyed) == nil {
		keys := make([]string, 0, len(keyed))
		for k := range keyed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(keyed[k], k)
		}
	}
	return out
}
