package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	nopw "github.com/MrEthical07/goNoPassword"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	paramFirst = "first"
	paramCode  = "code"
)

type requestBody struct {
	Identifier string `json:"identifier" form:"identifier"`
	Next       string `json:"next" form:"next"`
}

// RequestCode handles POST {LoginPath}. Unknown and inactive principals get
// the same 202 as known ones.
func (h *Handler) RequestCode(c *gin.Context) {
	requestID := c.GetString(requestIDKey)

	var body requestBody
	if err := c.ShouldBind(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	body.Identifier = strings.TrimSpace(body.Identifier)
	if body.Identifier == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Identifier field can't be empty",
			"requestID": requestID,
		})
		return
	}

	res, err := h.svc.RequestLoginCode(c.Request.Context(), body.Identifier, SafeRedirect(body.Next))
	switch {
	case err == nil:
		if derr := res.DeliveryErr(); derr != nil {
			h.logger.Warn("login code issued but not every delivery succeeded",
				zap.String("request_id", requestID),
				zap.Error(derr),
			)
		}
	case errors.Is(err, nopw.ErrPrincipalNotFound), errors.Is(err, nopw.ErrInactivePrincipal):
	case errors.Is(err, nopw.ErrRateLimited):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":     "Too many requests",
			"requestID": requestID,
		})
		return
	case errors.Is(err, nopw.ErrStoreUnavailable):
		h.logger.Error("login code request failed", zap.String("request_id", requestID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":     "Service unavailable",
			"requestID": requestID,
		})
		return
	default:
		h.logger.Error("login code request failed", zap.String("request_id", requestID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":   "If the account exists, a login code is on its way",
		"requestID": requestID,
	})
}

// RedeemCode handles GET {LoginPath}/:code.
func (h *Handler) RedeemCode(c *gin.Context) {
	code := c.Param(paramFirst)
	res, err := h.svc.Redeem(c.Request.Context(), code)
	h.finishRedeem(c, res, err)
}

// RedeemCodeWithUsername handles GET {LoginPath}/:username/:code.
func (h *Handler) RedeemCodeWithUsername(c *gin.Context) {
	username := c.Param(paramFirst)
	code := c.Param(paramCode)
	res, err := h.svc.RedeemWithUsername(c.Request.Context(), username, code)
	h.finishRedeem(c, res, err)
}

func (h *Handler) finishRedeem(c *gin.Context, res *nopw.Redemption, err error) {
	requestID := c.GetString(requestIDKey)
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("path", h.loginPath+"/<redacted>"),
		zap.String("ip", c.ClientIP()),
	}

	if err != nil {
		status := http.StatusUnauthorized
		msg := nopw.ErrCodeInvalid.Error()
		switch {
		case errors.Is(err, nopw.ErrRateLimited):
			status, msg = http.StatusTooManyRequests, "Too many requests"
		case errors.Is(err, nopw.ErrStoreUnavailable):
			status, msg = http.StatusServiceUnavailable, "Service unavailable"
		case errors.Is(err, nopw.ErrCodeInvalid), errors.Is(err, nopw.ErrInactivePrincipal):
		default:
			status, msg = http.StatusInternalServerError, "Internal server error"
		}

		h.logger.Info("login code redemption refused", append(fields, zap.Int("status", status), zap.Error(err))...)
		c.AbortWithStatusJSON(status, gin.H{
			"error":     msg,
			"requestID": requestID,
		})
		return
	}

	if h.sessions != nil {
		if serr := h.sessions.StartSession(c, res); serr != nil {
			h.logger.Error("session start failed", append(fields, zap.String("principal_id", res.PrincipalID), zap.Error(serr))...)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})
			return
		}
	}

	target := SafeRedirect(res.RedirectTarget)
	h.logger.Info("login code redeemed", append(fields, zap.String("principal_id", res.PrincipalID))...)

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{
			"principalID": res.PrincipalID,
			"redirect":    target,
			"requestID":   requestID,
		})
		return
	}
	c.Redirect(http.StatusFound, target)
}

func wantsJSON(c *gin.Context) bool {
	if c.Query("format") == "json" {
		return true
	}
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}

// SafeRedirect returns target when it is a local absolute path, and "/"
// otherwise. Scheme-relative ("//host") and backslash forms are refused.
func SafeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.Contains(target, "\\") {
		return nopw.DefaultRedirectTarget
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return nopw.DefaultRedirectTarget
	}
	return target
}
