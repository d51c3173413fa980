package constants

// for api
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
)

const (
	RequestIDHeader      = "X-Request-Id"
	AllowedDNCountHeader = "X-Allowed-DN-Count"
)

const (
	ForbiddenBody       = "Forbidden"
	OKBody              = "OK"
	TooManyRequestsBody = "Too Many Requests"
)

// 決策原因
type Reason string

const (
	ReasonAllowed       Reason = "allowed"
	ReasonMissingHeader Reason = "missing_header"
	ReasonNotAllowed    Reason = "not_allowed"
)

// log module 名稱
const (
	ModuleAPI       = "api"
	ModuleAllowlist = "allowlist"
	ModuleWatcher   = "watcher"
	ModuleAudit     = "audit"
	ModuleApp       = "app"
	ModuleRateLimit = "ratelimit"
)
