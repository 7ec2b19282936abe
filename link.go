package goNoPassword

import (
	"net/url"
	"strings"
)

// LoginURL returns the redemption URL for code:
//
//	{scheme}://{host}{LoginPath}[/{username}]/{code}?next={redirect}
//
// The username segment is omitted when Link.HideUsername is set or the
// principal has no username. The redirect keeps its slashes, so the default
// target renders as ?next=/.
func (e *Engine) LoginURL(code *LoginCode, principal Principal) string {
	if e == nil || code == nil {
		return ""
	}
	return buildLoginURL(e.config.Link, principal.Username, code.Code, code.RedirectTarget)
}

func buildLoginURL(cfg LinkConfig, username, code, next string) string {
	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}
	if next == "" {
		next = DefaultRedirectTarget
	}

	var b strings.Builder
	b.Grow(len(cfg.ServerURL) + len(cfg.LoginPath) + len(username) + len(code) + len(next) + 24)
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(cfg.ServerURL)
	b.WriteString(strings.TrimRight(cfg.LoginPath, "/"))
	if !cfg.HideUsername && username != "" {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(username))
	}
	b.WriteByte('/')
	b.WriteString(code)
	b.WriteString("?next=")
	// Query metacharacters are escaped; path separators stay readable.
	b.WriteString(strings.ReplaceAll(url.QueryEscape(next), "%2F", "/"))
	return b.String()
}
