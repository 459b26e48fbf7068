// Package handlers is the JSON HTTP surface over the service layer.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"redgraph/auth"
	"redgraph/metrics"
	"redgraph/middleware"
	"redgraph/service"
)

type Options struct {
	CookieName string
	// PublicURL is the externally visible origin used in reset links.
	PublicURL string
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Handler struct {
	svc     *service.Service
	issuer  *auth.Issuer
	cookie  string
	public  string
	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(svc *service.Service, issuer *auth.Issuer, opts Options) *Handler {
	if opts.CookieName == "" {
		opts.CookieName = "token"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		svc:     svc,
		issuer:  issuer,
		cookie:  opts.CookieName,
		public:  opts.PublicURL,
		metrics: opts.Metrics,
		log:     opts.Logger.With("component", "http"),
	}
}

// Mount registers every route on r. r is normally the /api/v1 group.
func (h *Handler) Mount(r gin.IRouter) {
	r.POST("/register", h.register)
	r.POST("/login", h.login)
	r.GET("/logout", h.logout)
	r.POST("/forgot/password", h.forgotPassword)
	r.PUT("/password/reset/:token", h.resetPassword)

	authed := r.Group("/")
	authed.Use(middleware.Auth(h.issuer, h.cookie))
	{
		authed.GET("/follow/:id", h.follow)
		authed.PUT("/update/password", h.updatePassword)
		authed.PUT("/update/profile", h.updateProfile)
		authed.DELETE("/delete/me", h.deleteMe)
		authed.GET("/me", h.me)
		authed.GET("/user/:id", h.userProfile)
		authed.GET("/users", h.users)

		authed.POST("/post/upload", h.createPost)
		authed.GET("/post/:id", h.likePost)
		authed.GET("/post/:id/detail", h.post)
		authed.PUT("/post/:id", h.updateCaption)
		authed.DELETE("/post/:id", h.deletePost)
		authed.GET("/posts", h.feed)
		authed.PUT("/post/comment/:id", h.comment)
		authed.DELETE("/post/comment/:id", h.deleteComment)
	}
}

func statusOf(k service.Kind) int {
	switch k {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindInvalidArgument, service.KindInvalidOperation:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindDependencyFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func (h *Handler) fail(c *gin.Context, err error) {
	kind := service.KindOf(err)
	if kind == service.KindInternal || kind == service.KindDependencyFailure {
		h.log.Error("request failed",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"error", err,
		)
	}
	c.JSON(statusOf(kind), gin.H{
		"success": false,
		"kind":    kind,
		"message": service.MessageOf(err),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"kind":    service.KindInvalidArgument,
		"message": message,
	})
}
