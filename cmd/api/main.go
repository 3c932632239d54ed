package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/sessions"

	"auth-starter/core"
)

func main() {
	cfg := core.Load()
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	if err := core.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	// Gorilla cookie store for the browser-side session cookie.
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))

	userRepo := core.NewPgUserRepository(db)
	roleRepo := core.NewPgRoleRepository(db)

	sessionStore := core.NewRedisSessionStore(redisClient)
	sessionManager := core.NewSessionManager(sessionStore, time.Duration(cfg.SessionTTLSeconds)*time.Second)

	if err := core.BootstrapAdmin(ctx, userRepo, roleRepo, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	provider := core.NewGitHubProvider(cfg)
	var federated *core.FederatedAuthenticator
	var oauthProvider core.OAuthProvider
	if provider != nil {
		oauthProvider = provider
		federated = core.NewFederatedAuthenticator(provider, userRepo, roleRepo)
	} else {
		log.Printf("github oauth disabled: GITHUB_CLIENT_ID is not set")
	}

	limiter := core.NewLoginRateLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst)
	defer limiter.Stop()

	rules := core.DefaultGuardRules()
	rules = append(rules, core.AdminRule("/api/v1/admin"))
	guard := core.NewRouteGuard(rules)

	deps := core.Deps{
		Users:        userRepo,
		Roles:        roleRepo,
		Sessions:     sessionManager,
		Password:     core.NewCredentialVerifier(userRepo),
		Signup:       core.NewSignupService(userRepo, roleRepo),
		Metrics:      core.NewMetricsService(redisClient),
		LoginLimiter: limiter,
		Guard:        guard,
	}
	if federated != nil {
		deps.Federated = federated
		deps.Provider = oauthProvider
	}

	router := core.NewRouter(cfg, store, deps)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
