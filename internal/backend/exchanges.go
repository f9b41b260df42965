// internal/backend/exchanges.go
package backend

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/rusenback/berrymon/internal/model"
)

// exchangeItem is one logged exchange as served by the backend. A single item
// carries the request and/or the response body.
type exchangeItem struct {
	ID          flexString `json:"id"`
	TS          flexString `json:"ts"`
	Request     flexText   `json:"request"`
	Response    flexText   `json:"response"`
	Endpoint    flexString `json:"endpoint"`
	PollerID    flexString `json:"poller_id"`
	ContentType flexString `json:"content_type"`
	Note        flexString `json:"note"`
	Status      flexString `json:"status"`
}

// FetchBatch retrieves the current exchange batch of a feed
func (c *Client) FetchBatch(ctx context.Context, feed Feed) ([]model.ExchangeRecord, error) {
	var raw map[string]jsoniter.RawMessage
	if err := c.do(ctx, http.MethodGet, feed.BatchPath, nil, &raw, true); err != nil {
		return nil, err
	}

	blob, ok := raw[feed.ItemsKey]
	if !ok {
		blob, ok = raw["items"]
	}
	if !ok || len(bytes.TrimSpace(blob)) == 0 || string(bytes.TrimSpace(blob)) == "null" {
		return nil, nil
	}

	var items []exchangeItem
	if err := json.Unmarshal(blob, &items); err != nil {
		return nil, fmt.Errorf("decode %s items: %w", feed.Name, err)
	}
	return recordsFromItems(items), nil
}

// Clear empties the backend's exchange log for a feed
func (c *Client) Clear(ctx context.Context, feed Feed) error {
	return c.do(ctx, http.MethodPost, feed.ClearPath, nil, nil, true)
}

// recordsFromItems splits each item into a request and a response record
func recordsFromItems(items []exchangeItem) []model.ExchangeRecord {
	out := make([]model.ExchangeRecord, 0, len(items)*2)
	for _, it := range items {
		channel := string(it.PollerID)
		if channel == "" {
			channel = string(it.Endpoint)
		}
		if channel == "" {
			channel = "-"
		}

		base := model.ExchangeRecord{
			Timestamp:   string(it.TS),
			Channel:     channel,
			ContentType: string(it.ContentType),
			Note:        string(it.Note),
			Status:      string(it.Status),
		}

		if it.Request.set {
			r := base
			r.Direction = model.Request
			r.Payload = it.Request.text
			if it.ID != "" {
				r.ID = string(it.ID) + "/" + string(model.Request)
			}
			out = append(out, r)
		}
		if it.Response.set {
			r := base
			r.Direction = model.Response
			r.Payload = it.Response.text
			if it.ID != "" {
				r.ID = string(it.ID) + "/" + string(model.Response)
			}
			out = append(out, r)
		}
	}
	return out
}

// flexString accepts a JSON string, number, bool or null
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	// numbers keep their literal form, so 1700000000.25 stays comparable
	if _, err := strconv.ParseFloat(string(b), 64); err == nil {
		*s = flexString(b)
		return nil
	}
	*s = flexString(strings.Trim(string(b), `"`))
	return nil
}

// flexText is a payload body: a JSON string is unwrapped, anything else is kept as
// its JSON text. Null and empty strings count as absent.
type flexText struct {
	text string
	set  bool
}

func (t *flexText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*t = flexText{}
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*t = flexText{text: v, set: v != ""}
		return nil
	}
	*t = flexText{text: string(b), set: true}
	return nil
}
