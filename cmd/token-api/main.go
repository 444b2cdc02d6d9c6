package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/halcyon-labs/token-api/api/swagger"
	"github.com/halcyon-labs/token-api/internal/handler"
	"github.com/halcyon-labs/token-api/internal/middleware"
	"github.com/halcyon-labs/token-api/internal/models"
	"github.com/halcyon-labs/token-api/internal/repository"
	"github.com/halcyon-labs/token-api/internal/service"
	"github.com/halcyon-labs/token-api/pkg/cache"
	"github.com/halcyon-labs/token-api/pkg/config"
	"github.com/halcyon-labs/token-api/pkg/database"
	"github.com/halcyon-labs/token-api/pkg/logger"
	corsmiddleware "github.com/halcyon-labs/token-api/pkg/middleware/cors"
	reqidmiddleware "github.com/halcyon-labs/token-api/pkg/middleware/requestid"
)

// @title Token API
// @version 1.0.0
// @description Refresh-token lifecycle service with rotation and theft detection
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := database.Migrate(ctx, db, cfg.Database); err != nil {
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
	}

	issuer, err := service.NewIssuer(service.IssuerConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
	})
	if err != nil {
		logr.Sugar().Fatalw("failed to init token issuer", "error", err)
	}

	tokenStore := repository.NewPostgresTokenStore(db)
	principalStore := repository.NewPostgresPrincipalStore(db)
	auditStore := repository.NewPostgresAuditStore(db)

	metricsSvc := service.NewMetricsService()

	var auditSvc *service.AuditService
	var auditRecorder service.AuditRecorder
	if cfg.Audit.Enabled {
		auditSvc = service.NewAuditService(auditStore, logr, service.AuditServiceConfig{
			Workers:    cfg.Audit.Workers,
			BufferSize: cfg.Audit.BufferSize,
		})
		auditSvc.Start(ctx)
		defer auditSvc.Stop()
		auditRecorder = auditSvc
	}

	tokenSvc := service.NewTokenService(tokenStore, principalStore, issuer, auditRecorder, metricsSvc, logr, service.TokenServiceConfig{
		RefreshTTL: cfg.Token.RefreshTTL,
	})
	tokenSvc.StartPurgeLoop(ctx, cfg.Token.PurgeInterval, cfg.Token.PurgeRetention)

	var denylist service.Denylist
	if cfg.Denylist.Enabled {
		rdb, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer rdb.Close()
		denylist = service.NewRedisDenylist(rdb)
	}

	authSvc := service.NewAuthService(principalStore, tokenSvc, issuer, denylist, auditRecorder, nil, logr)

	tokenHandler := handler.NewTokenHandler(authSvc)
	adminHandler := handler.NewAdminHandler(authSvc, nil)
	if auditSvc != nil {
		adminHandler = handler.NewAdminHandler(authSvc, auditSvc)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/token", tokenHandler.Login)
		api.POST("/token/refresh", tokenHandler.Refresh)
		api.POST("/token/revoke", tokenHandler.Revoke)

		authed := api.Group("", middleware.JWT(authSvc))
		{
			authed.POST("/token/revoke-all", tokenHandler.RevokeAll)
			authed.GET("/sessions", tokenHandler.Sessions)
			authed.GET("/me", tokenHandler.Me)

			admin := authed.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
			{
				admin.POST("/principals", adminHandler.CreatePrincipal)
				admin.PATCH("/principals/:id/deactivate", adminHandler.DeactivatePrincipal)
				admin.GET("/audit", adminHandler.ListAudit)
				admin.GET("/audit/export", adminHandler.ExportAudit)
			}
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
