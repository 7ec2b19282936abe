package httpapi

import (
	"context"
	"net/http"
	"strings"

	nopw "github.com/MrEthical07/goNoPassword"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Service is the part of *goNoPassword.Engine used by the handlers.
type Service interface {
	RequestLoginCode(ctx context.Context, identifier, redirectTarget string) (*nopw.IssueResult, error)
	Redeem(ctx context.Context, code string) (*nopw.Redemption, error)
	RedeemWithUsername(ctx context.Context, username, code string) (*nopw.Redemption, error)
}

// SessionStarter establishes the session after a successful redemption,
// typically by setting a cookie on c.
type SessionStarter interface {
	StartSession(c *gin.Context, r *nopw.Redemption) error
}

// SessionStarterFunc adapts a function to SessionStarter.
type SessionStarterFunc func(c *gin.Context, r *nopw.Redemption) error

func (f SessionStarterFunc) StartSession(c *gin.Context, r *nopw.Redemption) error {
	return f(c, r)
}

// Config configures NewRouter.
type Config struct {
	// LoginPath must match the engine's Link.LoginPath.
	LoginPath string
	// AllowOrigins enables CORS for the listed origins. Empty disables CORS.
	AllowOrigins []string
	Logger       *zap.Logger
	Sessions     SessionStarter
	// Metrics, when set, is served on MetricsPath.
	Metrics     http.Handler
	MetricsPath string
}

// Handler holds the route handlers.
type Handler struct {
	svc       Service
	sessions  SessionStarter
	logger    *zap.Logger
	loginPath string
}

func NewHandler(svc Service, cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:       svc,
		sessions:  cfg.Sessions,
		logger:    logger.Named("http"),
		loginPath: normalizeLoginPath(cfg.LoginPath),
	}
}

// NewRouter returns a gin engine with the login-code routes, request IDs,
// request logging and optional CORS.
func NewRouter(svc Service, cfg Config) *gin.Engine {
	h := NewHandler(svc, cfg)

	router := gin.New()
	middleware := []gin.HandlerFunc{}
	if len(cfg.AllowOrigins) > 0 {
		middleware = append(middleware, corsMiddleware(cfg.AllowOrigins))
	}
	middleware = append(middleware,
		gin.Recovery(),
		RequestID(),
		requestLogger(h.logger, h.loginPath),
	)
	router.Use(middleware...)
	router.HandleMethodNotAllowed = true

	// HEAD /healthz			-> liveness probe
	router.HEAD("/healthz", h.Health)
	router.GET("/healthz", h.Health)

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(cfg.Metrics))
	}

	h.Register(router.Group(h.loginPath))
	return router
}

// Register mounts the login-code routes on g, which should be rooted at the
// login path.
func (h *Handler) Register(g *gin.RouterGroup) {
	// POST {LoginPath}			-> request a login code
	g.POST("", h.RequestCode)

	// gin needs one wildcard name per segment, so the first segment is the
	// code on the short route and the username on the long one.

	// GET {LoginPath}/:code		-> redeem a code
	g.GET("/:"+paramFirst, h.RedeemCode)

	// GET {LoginPath}/:username/:code	-> redeem a code bound to a username
	g.GET("/:"+paramFirst+"/:"+paramCode, h.RedeemCodeWithUsername)
}

func (h *Handler) Health(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func normalizeLoginPath(p string) string {
	if p == "" {
		p = nopw.DefaultLoginPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}
