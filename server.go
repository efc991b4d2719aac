package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/devicesync"
	"bitbucket.org/easyadvisor/fingov_backend/middlewares"
	"bitbucket.org/easyadvisor/fingov_backend/models"
	"bitbucket.org/easyadvisor/fingov_backend/notify"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
	"bitbucket.org/easyadvisor/fingov_backend/versionfeed"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

const (
	roleAdmin   = "ADMIN"
	roleManager = "MANAGER"
	roleAgent   = "AGENT"
)

// app holds the long-lived collaborators the handlers share.
type app struct {
	notifier     *notify.Notifier
	otpDeliverer models.OtpDeliverer
	otpLimiter   *models.OtpRateLimiter
	feed         *versionfeed.Feed
}

func newApp() (*app, error) {
	store, err := utils.NewObjectStore()
	if err != nil {
		return nil, err
	}
	notifier := notify.NewNotifier()
	return &app{
		notifier:     notifier,
		otpDeliverer: notifier,
		otpLimiter:   models.NewOtpRateLimiter(),
		feed:         versionfeed.New(store),
	}, nil
}

func (a *app) routes(r *gin.Engine) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "server": "FINGOV PRO CLOUD 2.0"})
	})
	r.GET("/version_info", versionfeed.VersionInfoHandler(a.feed))
	r.POST("/version-admin/admin/update_version", versionfeed.UpdateVersionHandler(a.feed))

	auth := r.Group("/auth")
	auth.POST("/register", registerHandler())
	auth.POST("/login", loginHandler())
	auth.POST("/refresh", refreshHandler())
	auth.POST("/logout", logoutHandler())
	auth.POST("/send_otp", sendOtpHandler(a.otpLimiter, a.otpDeliverer))
	auth.POST("/verify_otp", verifyOtpHandler())

	sync := r.Group("/sync", middlewares.RequireAuth())
	sync.POST("/push", devicesync.PushHandler())
	sync.POST("/pull", devicesync.PullHandler())

	partners := r.Group("/partners", middlewares.RequireAuth())
	partners.GET("", listPartnersHandler())
	partners.POST("/upsert", upsertPartnerHandler())
	partners.GET("/export", middlewares.RequireRole(roleAdmin, roleManager), exportPartnersHandler())

	r.POST("/send_whatsapp", middlewares.RequireRole(roleAdmin, roleManager, roleAgent), notify.SendWhatsAppHandler(a.notifier))

	admin := r.Group("/admin")
	admin.GET("/users", middlewares.RequireRole(roleAdmin), listUsersHandler())
	admin.POST("/create_user", middlewares.RequireRole(roleAdmin), createUserHandler())
	admin.GET("/get_template", middlewares.RequireAuth(), getTemplateHandler())
	admin.POST("/set_template", middlewares.RequireRole(roleAdmin), setTemplateHandler())
	admin.GET("/get_template_generic", middlewares.RequireAuth(), getGenericTemplateHandler())
	admin.POST("/set_template_generic", middlewares.RequireRole(roleAdmin), setGenericTemplateHandler())

	r.NoRoute(customNotFoundHandler)
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// readinessGate answers 503 until the database is connected. Redis is
// optional: its users degrade on their own.
func readinessGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service starting"})
			return
		}
		c.Next()
	}
}

func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	// production requires an explicit allowlist; elsewhere any origin is accepted
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if config.IsProduction() {
		if allowedOrigins == "" {
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-device-id", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return corsConfig
}

// rateLimiterFromEnv reads RATE_LIMIT_ENABLED, RATE_LIMIT_MAX_REQUESTS (600)
// and RATE_LIMIT_WINDOW_SECONDS (60).
func rateLimiterFromEnv() *middlewares.RateLimiter {
	if !config.EnvBoolDefault("RATE_LIMIT_ENABLED", false) {
		return nil
	}
	limit := int64(600)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	windowSec := config.IntFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)
	if windowSec <= 0 {
		windowSec = 60
	}
	return middlewares.NewRateLimiter(limit, time.Duration(windowSec)*time.Second)
}

func setupRouter(a *app, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.SessionMiddleware())
	r.Use(readinessGate())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(cors.New(corsConfig()))
	if rl := rateLimiterFromEnv(); rl != nil {
		r.Use(rl.RateLimitMiddleware)
	}
	r.Use(middlewares.AccessLogger(logger))
	r.Use(gin.Recovery())
	r.Use(middlewares.AuthMiddleware())
	a.routes(r)
	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	a, err := newApp()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "storage"}).Fatal(err.Error())
	}
	r := setupRouter(a, logger)

	// Start listening immediately; app endpoints answer 503 until the DB is up.
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	go config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can hold table locks; large deployments run it as a job instead.
	if !config.EnvBoolDefault("SKIP_MIGRATIONS", false) {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info":   "Connection Established",
		"driver": config.DatabaseDriver(),
	}).Info("fingov backend listening on :", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	config.ClosePubSub()
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
