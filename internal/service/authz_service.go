package service

import (
	"context"
	"time"

	"github.com/BandwidthOnDemand/nsi-auth/internal/audit"
	"github.com/BandwidthOnDemand/nsi-auth/internal/constants"
	"github.com/rs/zerolog"
)

type Decision struct {
	Allowed bool
	Reason  constants.Reason
}

// Request 一次驗證請求的上下文資訊, 只用於稽核
type Request struct {
	DN         string
	RequestID  string
	RemoteAddr string
}

type IAuthzService interface {
	Validate(ctx context.Context, req Request) Decision
	AllowedCount() int
}

// AllowList 由 allowlist.Store 實作
type AllowList interface {
	Allowed(dn string) bool
	Len() int
}

type AuthzService struct {
	allowList AllowList
	sink      audit.Sink
	logger    zerolog.Logger
	now       func() time.Time
}

func NewAuthzService(allowList AllowList, sink audit.Sink, logger zerolog.Logger) *AuthzService {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &AuthzService{
		allowList: allowList,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

// Validate 空 DN 與不在清單內的 DN 一律拒絕, 稽核失敗不影響結果
func (s *AuthzService) Validate(ctx context.Context, req Request) Decision {
	var d Decision
	switch {
	case req.DN == "":
		d = Decision{Allowed: false, Reason: constants.ReasonMissingHeader}
	case !s.allowList.Allowed(req.DN):
		d = Decision{Allowed: false, Reason: constants.ReasonNotAllowed}
	default:
		d = Decision{Allowed: true, Reason: constants.ReasonAllowed}
	}

	err := s.sink.Publish(ctx, audit.Event{
		Time:       s.now().UTC(),
		RequestID:  req.RequestID,
		DN:         req.DN,
		Allowed:    d.Allowed,
		Reason:     d.Reason,
		RemoteAddr: req.RemoteAddr,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("audit publish failed")
	}
	return d
}

func (s *AuthzService) AllowedCount() int {
	return s.allowList.Len()
}
