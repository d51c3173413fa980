package handler

import (
	"net/http"
	"strconv"

	"github.com/BandwidthOnDemand/nsi-auth/internal/api/middleware"
	"github.com/BandwidthOnDemand/nsi-auth/internal/constants"
	"github.com/BandwidthOnDemand/nsi-auth/internal/service"
	"github.com/rs/zerolog"
)

type ValidateHandler struct {
	authzService service.IAuthzService
	dnHeader     string
	logger       zerolog.Logger
}

func NewValidateHandler(authzService service.IAuthzService, dnHeader string, logger zerolog.Logger) *ValidateHandler {
	return &ValidateHandler{
		authzService: authzService,
		dnHeader:     dnHeader,
		logger:       logger,
	}
}

// Validate 檢查 proxy 帶入的 client subject DN 是否在允許清單內
// 允許回 200 OK, 其餘回 403 Forbidden
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	dn := r.Header.Get(h.dnHeader)
	requestId := middleware.GetRequestID(r.Context())

	decision := h.authzService.Validate(r.Context(), service.Request{
		DN:         dn,
		RequestID:  requestId,
		RemoteAddr: r.RemoteAddr,
	})

	switch decision.Reason {
	case constants.ReasonMissingHeader:
		h.logger.Warn().Str("request_id", requestId).Msgf("no %s header on HTTP request", h.dnHeader)
	case constants.ReasonNotAllowed:
		h.logger.Info().Str("request_id", requestId).Str("dn", dn).Msgf("deny %s", dn)
	default:
		h.logger.Info().Str("request_id", requestId).Str("dn", dn).Msgf("allow %s", dn)
	}

	if !decision.Allowed {
		writeText(w, http.StatusForbidden, constants.ForbiddenBody)
		return
	}
	writeText(w, http.StatusOK, constants.OKBody)
}

// Health 回報已載入的 DN 數量
func (h *ValidateHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(constants.AllowedDNCountHeader, strconv.Itoa(h.authzService.AllowedCount()))
	writeText(w, http.StatusOK, constants.OKBody)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
