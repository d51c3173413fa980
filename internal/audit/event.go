package audit

import (
	"context"
	"time"

	"github.com/BandwidthOnDemand/nsi-auth/internal/constants"
)

// Event 一次授權決策
type Event struct {
	Time       time.Time        `json:"time"`
	RequestID  string           `json:"request_id,omitempty"`
	DN         string           `json:"dn"`
	Allowed    bool             `json:"allowed"`
	Reason     constants.Reason `json:"reason"`
	RemoteAddr string           `json:"remote_addr,omitempty"`
}

// Sink 決策稽核輸出
type Sink interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopSink 未設定 broker 時使用
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }

func (NopSink) Close() error { return nil }
