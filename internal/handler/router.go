package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/milk-back/backend/docs"
	"github.com/milk-back/backend/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	Log            *slog.Logger
	Gatherer       prometheus.Gatherer
	Interceptor    *service.AuthInterceptor
	Auth           *AuthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(cfg.Log))
	router.Use(CORSMiddleware(cfg.AllowedOrigins, true))

	router.GET("/ping", Ping)
	router.GET("/", Root)
	docs.SwaggerInfo.BasePath = cfg.APIPrefix
	router.GET("/openapi.json", OpenAPIDoc)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group(cfg.APIPrefix)
	api.Use(AuthMiddleware(cfg.Interceptor, cfg.Log))

	auth := api.Group("/auth")
	auth.POST("/signUp", cfg.Auth.SignUp)
	auth.POST("/signIn", cfg.Auth.SignIn)
	auth.GET("/test", cfg.Auth.Test)

	protected := auth.Group("")
	protected.Use(RequireAuth())
	protected.POST("/logout", cfg.Auth.Logout)
	protected.POST("/refresh_tokens", cfg.Auth.Refresh)
	protected.GET("/me", cfg.Auth.Me)

	return router
}
