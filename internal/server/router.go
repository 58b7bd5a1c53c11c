// Package server assembles the HTTP surface.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/auth"
	"github.com/kaenova/prompty/internal/handlers"
	"github.com/kaenova/prompty/internal/metrics"
	"github.com/kaenova/prompty/internal/middleware"
	"github.com/kaenova/prompty/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options tunes the router.
type Options struct {
	CORSOrigin string
	// Login, setup and invite redemption are limited per client IP.
	RateLimitPerMinute int
	RateLimitBurst     int
	Logger             *slog.Logger
}

// NewRouter registers every route.
func NewRouter(svc *services.Services, issuer *auth.Issuer, opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(metrics.Middleware())
	router.Use(middleware.CORSMiddleware(opts.CORSOrigin))

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupHandler := handlers.NewSetupHandler(svc.Users, issuer)
	authHandler := handlers.NewAuthHandler(svc.Users, issuer)
	userHandler := handlers.NewUserHandler(svc.Users)
	inviteHandler := handlers.NewInviteHandler(svc.Invites)
	projectHandler := handlers.NewProjectHandler(svc.Projects)
	agentHandler := handlers.NewAgentHandler(svc.Agents)
	promptHandler := handlers.NewPromptHandler(svc.Prompts)
	apiKeyHandler := handlers.NewAPIKeyHandler(svc.APIKeys)
	fetchHandler := handlers.NewPromptFetchHandler(svc.Agents)

	limited := middleware.RateLimitMiddleware(opts.RateLimitPerMinute, opts.RateLimitBurst)
	requireAuth := middleware.AuthMiddleware(issuer, svc.Users)

	api := router.Group("/api")

	// Public prompt fetch, authenticated by project API key
	api.GET("/prompt", middleware.APIKeyMiddleware(svc.APIKeys), fetchHandler.GetActivePrompt)

	// Bootstrap and sign-in
	api.GET("/setup", setupHandler.Status)
	api.POST("/setup", limited, setupHandler.Setup)
	api.POST("/auth/login", limited, authHandler.Login)
	api.GET("/auth/me", requireAuth, authHandler.Me)

	// Invites: redemption is public, creation is admin only
	api.GET("/invites/:token", limited, inviteHandler.GetInvite)
	api.POST("/invites/:token/accept", limited, inviteHandler.AcceptInvite)
	api.POST("/invites", requireAuth, inviteHandler.CreateInvite)

	// Admin user management
	usersAPI := api.Group("/users", requireAuth)
	usersAPI.GET("", userHandler.ListUsers)
	usersAPI.PATCH("/:id/role", userHandler.UpdateRole)
	usersAPI.DELETE("/:id", userHandler.DeleteUser)

	// Projects and membership
	projectsAPI := api.Group("/projects", requireAuth)
	projectsAPI.GET("", projectHandler.ListProjects)
	projectsAPI.POST("", projectHandler.CreateProject)
	projectsAPI.GET("/:id", projectHandler.GetProject)
	projectsAPI.PATCH("/:id", projectHandler.UpdateProject)
	projectsAPI.DELETE("/:id", projectHandler.DeleteProject)
	projectsAPI.GET("/:id/members", projectHandler.ListMembers)
	projectsAPI.POST("/:id/members", projectHandler.AddMember)
	projectsAPI.PATCH("/:id/members/:userId", projectHandler.UpdateMember)
	projectsAPI.DELETE("/:id/members/:userId", projectHandler.RemoveMember)
	projectsAPI.GET("/:id/agents", agentHandler.ListAgents)
	projectsAPI.POST("/:id/agents", agentHandler.CreateAgent)
	projectsAPI.GET("/:id/api-keys", apiKeyHandler.ListAPIKeys)
	projectsAPI.POST("/:id/api-keys", apiKeyHandler.CreateAPIKey)

	// Agents and their prompts
	agentsAPI := api.Group("/agents", requireAuth)
	agentsAPI.GET("/:agentId", agentHandler.GetAgent)
	agentsAPI.PATCH("/:agentId", agentHandler.UpdateAgent)
	agentsAPI.DELETE("/:agentId", agentHandler.DeleteAgent)
	agentsAPI.PUT("/:agentId/active-prompt", agentHandler.ActivatePrompt)
	agentsAPI.DELETE("/:agentId/active-prompt", agentHandler.DeactivatePrompt)
	agentsAPI.GET("/:agentId/prompts", promptHandler.ListPrompts)
	agentsAPI.POST("/:agentId/prompts", promptHandler.CreatePrompt)

	promptsAPI := api.Group("/prompts", requireAuth)
	promptsAPI.GET("/:promptId", promptHandler.GetPrompt)
	promptsAPI.PUT("/:promptId", promptHandler.UpdatePrompt)
	promptsAPI.DELETE("/:promptId", promptHandler.DeletePrompt)

	api.DELETE("/api-keys/:keyId", requireAuth, apiKeyHandler.RevokeAPIKey)

	return router
}

// Run serves handler on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
