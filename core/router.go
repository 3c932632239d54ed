package core

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// Deps bundles the collaborators the router wires into handlers. Everything
// is behind an interface or small service so handler tests can use fakes.
type Deps struct {
	Users        UserRepository
	Roles        RoleRepository
	Sessions     *SessionManager
	Password     Authenticator
	Federated    Authenticator // nil when OAuth is not configured
	Provider     OAuthProvider // nil when OAuth is not configured
	Signup       *SignupService
	Metrics      *MetricsService
	LoginLimiter *LoginRateLimiter
	Guard        *RouteGuard
}

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, store *sessions.CookieStore, deps Deps) *gin.Engine {
	startedAt := time.Now()
	r := gin.Default()

	// Global middleware: origin/CORS -> session -> CSRF -> route guard
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(SessionMiddleware(cfg, store, deps.Sessions))
	r.Use(CSRFMiddleware(cfg, store))
	r.Use(GuardMiddleware(deps.Guard))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Auth entry pages. Rendering is owned by the frontend; these exist so
	// the guard can bounce already-authenticated users to the dashboard.
	r.GET("/auth/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"page": "login"})
	})
	r.GET("/auth/signup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"page": "signup"})
	})

	// Guard-protected landing area.
	r.GET("/dashboard", func(c *gin.Context) {
		ident, ok := requireLogin(c)
		if !ok {
			return
		}
		var session gin.H
		sess := cookieSessionFrom(c)
		if token, _ := sess.Values["token"].(string); token != "" {
			if rec := deps.Sessions.ResolveRecord(c.Request.Context(), token); rec != nil {
				session = gin.H{
					"method":         rec.Method,
					"established_at": rec.EstablishedAt,
					"expires_at":     rec.ExpiresAt,
				}
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"user":    identityJSON(*ident),
			"session": session,
		})
	})

	// Federated login (browser flow).
	r.GET("/auth/github", func(c *gin.Context) {
		if deps.Provider == nil {
			respondError(c, http.StatusNotFound, "OAUTH_DISABLED", "GitHub ログインは設定されていません。")
			return
		}
		state, err := generateRandomToken()
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue oauth state")
			return
		}
		sess := cookieSessionFrom(c)
		sess.Values["oauth_state"] = state
		applySessionOptions(cfg, sess)
		if err := sess.Save(c.Request, c.Writer); err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to persist session")
			return
		}
		c.Redirect(http.StatusFound, deps.Provider.AuthCodeURL(state))
	})

	r.GET("/auth/github/callback", func(c *gin.Context) {
		if deps.Provider == nil || deps.Federated == nil {
			respondError(c, http.StatusNotFound, "OAUTH_DISABLED", "GitHub ログインは設定されていません。")
			return
		}
		sess := cookieSessionFrom(c)
		wantState, _ := sess.Values["oauth_state"].(string)
		// The state is single-use: clear it from the cookie before any
		// outcome is decided so a failed callback cannot replay it.
		delete(sess.Values, "oauth_state")
		applySessionOptions(cfg, sess)
		if err := sess.Save(c.Request, c.Writer); err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to persist session")
			return
		}

		code := c.Query("code")
		state := c.Query("state")
		if code == "" || wantState == "" || state != wantState {
			log.Printf("oauth callback rejected: state mismatch")
			c.Redirect(http.StatusSeeOther, "/auth/login?error=oauth")
			return
		}

		ident, err := deps.Federated.Authenticate(c.Request.Context(), Submission{
			Method:   MethodFederated,
			Provider: deps.Provider.Name(),
			Code:     code,
		})
		if err != nil {
			// Provider detail stays in the server log; the client only
			// learns that federated login failed.
			log.Printf("federated login failed: %v", err)
			if deps.Metrics != nil {
				deps.Metrics.RecordLogin(c.Request.Context(), false)
			}
			c.Redirect(http.StatusSeeOther, "/auth/login?error=oauth")
			return
		}

		if !establishCookieSession(c, cfg, deps.Sessions, sess, ident, MethodFederated) {
			return
		}
		if deps.Metrics != nil {
			deps.Metrics.RecordLogin(c.Request.Context(), true)
		}
		c.Redirect(http.StatusSeeOther, "/dashboard")
	})

	api := r.Group("/api/v1")
	{
		loginHandlers := []gin.HandlerFunc{}
		if deps.LoginLimiter != nil {
			loginHandlers = append(loginHandlers, deps.LoginLimiter.Middleware())
		}
		loginHandlers = append(loginHandlers, func(c *gin.Context) {
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			ident, err := deps.Password.Authenticate(c.Request.Context(), Submission{
				Method:   MethodPassword,
				Email:    req.Email,
				Password: req.Password,
			})
			if err != nil {
				if deps.Metrics != nil {
					deps.Metrics.RecordLogin(c.Request.Context(), false)
				}
				if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInvalidInput) {
					respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "メールアドレスまたはパスワードが違います。")
					return
				}
				log.Printf("login failed internally: %v", err)
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "login failed")
				return
			}

			sess := cookieSessionFrom(c)
			if !establishCookieSession(c, cfg, deps.Sessions, sess, ident, MethodPassword) {
				return
			}
			if deps.Metrics != nil {
				deps.Metrics.RecordLogin(c.Request.Context(), true)
			}
			c.JSON(http.StatusOK, gin.H{"user": identityJSON(ident)})
		})
		api.POST("/auth/login", loginHandlers...)

		api.POST("/auth/logout", func(c *gin.Context) {
			sess := cookieSessionFrom(c)
			if sess == nil {
				c.Status(http.StatusNoContent)
				return
			}
			token, _ := sess.Values["token"].(string)
			// Idempotent: signing out an unknown or already-invalidated
			// token is not an error.
			if err := deps.Sessions.SignOut(c.Request.Context(), token); err != nil {
				log.Printf("sign-out failed: %v", err)
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
				return
			}
			sess.Values = map[interface{}]interface{}{}
			applySessionOptions(cfg, sess)
			sess.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
			if err := sess.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
				return
			}
			c.Status(http.StatusNoContent)
		})

		api.POST("/auth/signup", func(c *gin.Context) {
			var req SignupInput
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			ident, err := deps.Signup.Signup(c.Request.Context(), req)
			if err != nil {
				var verr *ValidationError
				switch {
				case errors.As(err, &verr):
					respondValidationError(c, verr.Issues)
				case errors.Is(err, ErrUserExists):
					respondError(c, http.StatusConflict, "USER_EXISTS", "このメールアドレスは既に登録されています。")
				default:
					log.Printf("signup failed internally: %v", err)
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "signup failed")
				}
				return
			}
			if deps.Metrics != nil {
				deps.Metrics.RecordSignup(c.Request.Context())
			}
			c.JSON(http.StatusCreated, gin.H{
				"id":    ident.ID,
				"email": ident.Email,
				"name":  ident.Name,
			})
		})

		api.GET("/users/me", func(c *gin.Context) {
			ident, ok := requireLogin(c)
			if !ok {
				return
			}
			c.JSON(http.StatusOK, identityJSON(*ident))
		})

		admin := api.Group("/admin")
		admin.Use(RequireRole(AdminRoleName))

		admin.GET("/users", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := deps.Users.List(c.Request.Context(), page, perPage)
			if err != nil {
				log.Printf("list users failed: %v", err)
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch users")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		admin.POST("/users", func(c *gin.Context) {
			var req struct {
				Email    string `json:"email"`
				Name     string `json:"name"`
				Password string `json:"password"`
				Role     string `json:"role"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			req.Email = NormalizeEmail(req.Email)
			req.Name = strings.TrimSpace(req.Name)
			req.Role = strings.TrimSpace(req.Role)
			if req.Email == "" || req.Password == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required")
				return
			}
			if req.Role == "" {
				req.Role = DefaultRoleName
			}
			if req.Name == "" {
				req.Name = req.Email
			}

			ctx := c.Request.Context()
			role, err := deps.Roles.FindByName(ctx, req.Role)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to look up role")
				return
			}
			if role == nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid role")
				return
			}

			hash, err := HashPassword(req.Password)
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid password")
				return
			}
			id, err := deps.Users.Create(ctx, req.Email, req.Name, &hash, role.ID)
			if err != nil {
				if IsUniqueViolation(err) {
					respondError(c, http.StatusConflict, "USER_EXISTS", "このメールアドレスは既に登録されています。")
					return
				}
				log.Printf("admin create user failed: %v", err)
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create user")
				return
			}
			c.JSON(http.StatusCreated, gin.H{
				"id":    id,
				"email": req.Email,
				"name":  req.Name,
				"role":  role.Name,
			})
		})

		admin.GET("/metrics/overview", func(c *gin.Context) {
			m, err := deps.Metrics.Overview(c.Request.Context())
			if err != nil {
				log.Printf("metrics overview failed: %v", err)
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load metrics")
				return
			}
			c.JSON(http.StatusOK, m)
		})

		admin.GET("/system/status", func(c *gin.Context) {
			st, err := CollectSystemStatus(c.Request.Context(), deps.Metrics, startedAt)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load system status")
				return
			}
			c.JSON(http.StatusOK, st)
		})
	}

	return r
}

// establishCookieSession issues a server session and rotates the cookie
// session around the new token. Returns false after writing an error response.
func establishCookieSession(c *gin.Context, cfg Config, manager *SessionManager, sess *sessions.Session, ident Identity, method Method) bool {
	token, err := manager.Establish(c.Request.Context(), ident, method)
	if err != nil {
		log.Printf("session establish failed: %v", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to establish session")
		return false
	}

	// reset cookie session values (simple rotation)
	sess.Values = map[interface{}]interface{}{}
	sess.Values["token"] = token
	applySessionOptions(cfg, sess)
	if err := sess.Save(c.Request, c.Writer); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to set session")
		return false
	}
	return true
}

func requireLogin(c *gin.Context) (*Identity, bool) {
	ident := identityFrom(c)
	if ident == nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "ログインが必要です。")
		return nil, false
	}
	return ident, true
}

func identityJSON(ident Identity) gin.H {
	return gin.H{
		"id":    ident.ID,
		"email": ident.Email,
		"name":  ident.Name,
		"role":  ident.Role,
	}
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := defaultPerPage
	if strings.TrimSpace(pageStr) != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("page は 1 以上の整数で指定してください")
		}
		page = p
	}
	if strings.TrimSpace(perPageStr) != "" {
		p, err := strconv.Atoi(perPageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("per_page は 1 以上の整数で指定してください")
		}
		if p > maxPerPage {
			p = maxPerPage
		}
		perPage = p
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
