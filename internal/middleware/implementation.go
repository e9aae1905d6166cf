package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/akolanti/CivicRAG/internal/adapter/utils"
	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/handlers"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

var authSettings struct {
	token  string
	bypass bool
}

// InitAuth sets the shared bearer token. bypass turns the check off for local runs.
func InitAuth(token string, bypass bool) {
	authSettings.token = token
	authSettings.bypass = bypass
}

func injectTrace(re requestResponseStruct) requestResponseStruct {
	req := re.req
	if req == nil {
		//this is a bad request
		re.badRequest = failureStruct{isBadRequest: true, httpCode: http.StatusBadRequest, errorMessage: "request is empty"}
		return re
	}
	trace := req.Header.Get(config.TRACE_ID_HEADER)
	if trace == "" {
		trace = utils.GetNewUUID()
	}
	re.logger = re.logger.With("traceId", trace)
	req.Header.Set(config.TRACE_ID_HEADER, trace)
	re.writer.Header().Set(config.TRACE_ID_HEADER, trace)
	re.req = req.WithContext(logger_i.ContextWithTrace(req.Context(), trace))

	re.logger.Debug("trace middleware injected")
	return re
}

func authenticate(re requestResponseStruct) requestResponseStruct {
	if !IsValidBearerToken(re.req.Header.Get("Authorization"), re.logger) {
		re.badRequest = failureStruct{isBadRequest: true, httpCode: http.StatusUnauthorized, errorMessage: "Unauthorized"}
		return re
	}
	re.logger.Debug("Authorized")
	return re
}

func IsValidBearerToken(authHeader string, log *logger_i.Logger) bool {
	if authSettings.bypass {
		log.Warn("auth bypass enabled, bearer token not checked")
		return true
	}
	if authSettings.token == "" {
		log.Error("No auth token configured")
		return false
	}
	if authHeader == "" {
		log.Error("Empty authorization header")
		return false
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		log.Error("No Bearer header")
		return false
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(authHeader, "Bearer ")), []byte(authSettings.token)) != 1 {
		log.Error("Invalid authorization header")
		return false
	}

	return true
}

func rateLimiter(re requestResponseStruct) requestResponseStruct {
	ip, _, err := net.SplitHostPort(re.req.RemoteAddr)
	if err != nil {
		ip = re.req.RemoteAddr
	}

	if !limiterInstance.GetLimiter(ip).Allow() {
		re.logger.Warn("Too many requests", "ip", ip)
		re.badRequest = failureStruct{
			isBadRequest: true,
			httpCode:     http.StatusTooManyRequests,
			errorMessage: "Rate limit exceeded",
			retry:        true,
		}
		return re
	}
	return re
}

// resolvePrincipal reads the identity the gateway forwards. A missing or unknown role leaves the
// principal empty and the service answers 401 for anything that needs one.
func resolvePrincipal(re requestResponseStruct) requestResponseStruct {
	principal := ParsePrincipal(re.req.Header)
	re.logger.Debug("Resolved principal", "userId", principal.UserId, "role", principal.Role)
	re.req = re.req.WithContext(commonModels.ContextWithPrincipal(re.req.Context(), principal))
	return re
}

func ParsePrincipal(header http.Header) commonModels.Principal {
	principal := commonModels.Principal{UserId: strings.TrimSpace(header.Get(config.UserIdHeader))}
	switch role := commonModels.Role(strings.ToLower(strings.TrimSpace(header.Get(config.UserRoleHeader)))); role {
	case commonModels.RoleAdmin, commonModels.RoleSubAdmin, commonModels.RoleConsumer:
		principal.Role = role
	}
	for _, id := range strings.Split(header.Get(config.JurisdictionIdsHeader), ",") {
		if id = strings.TrimSpace(id); id != "" {
			principal.JurisdictionIds = append(principal.JurisdictionIds, id)
		}
	}
	return principal
}

// handleBadRequest writes the failure, it reports false when the request must stop.
func handleBadRequest(re requestResponseStruct) bool {
	if re.badRequest.isBadRequest {
		remote := ""
		if re.req != nil {
			remote = re.req.RemoteAddr
		}
		re.logger.Warn("Bad request", "httpCode", re.badRequest.httpCode, "errorMessage", re.badRequest.errorMessage, "IP", remote)
		handlers.WriteErrorResponse(re.writer, re.badRequest.httpCode, re.badRequest.errorMessage, re.badRequest.retry)
		return false
	}
	return true
}
