// Package app builds the HTTP engine and contains all endpoints available
package app

import (
	"arc/auth-api/app/auth"
	"arc/auth-api/app/privacy"
	"arc/auth-api/app/root"
	"arc/auth-api/app/user"
	"arc/auth-api/config"
	"arc/auth-api/db"
	"arc/auth-api/internal"
	"arc/auth-api/internal/service"
	"arc/auth-api/pkg/middleware"
	"context"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"

	maxBodySize = 64 << 10
)

func NewRouter(c *config.Config) (*gin.Engine, error) {
	makeLogger(c.App.LogLevel)

	d, err := db.New(c.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database, %w", c.DB.Driver, err)
	}

	deps, err := internal.NewDeps(c, d, service.NewMailer(c.Mail))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dependencies, %w", err)
	}

	deps.Tokens.StartCleanup(context.Background(), c.Tokens.CleanupInterval, c.Tokens.Retention)

	return NewEngine(deps)
}

// NewEngine registers middleware and routes around already built deps
func NewEngine(d *internal.Deps) (*gin.Engine, error) {
	c := d.Config
	router := gin.New()

	if err := router.SetTrustedProxies(c.Host.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies, %w", err)
	}

	guard := middleware.NewSessionGuard(d.Sessions, c.Session.CookieName, c.Session.LoginPath, middleware.RulesFrom(c.Session))

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     c.Host.CORS,
			AllowMethods:     []string{"GET", "POST", "PATCH", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
		guard.Handler(),
		middleware.BodySizeLimiter(maxBodySize),
	)

	router.HandleMethodNotAllowed = true

	m := router.Group("/api")
	{
		// HEAD /api/heartbeat			-> Used to check if the server is alive
		m.HEAD("/heartbeat", func(c *gin.Context) { root.Heartbeat(c, d) })
	}

	a := m.Group("/auth")
	{
		// POST /api/auth/register		-> Registers a new user and sends a verification mail
		a.POST("/register", func(c *gin.Context) { auth.Register(c, d) })

		// POST /api/auth/login			-> Logs in a verified user and sets the session cookie
		a.POST("/login", func(c *gin.Context) { auth.Login(c, d) })

		// POST /api/auth/logout		-> Clears the session cookie
		a.POST("/logout", func(c *gin.Context) { auth.Logout(c, d) })

		// GET /api/auth/me			-> Returns the profile of the session user
		a.GET("/me", func(c *gin.Context) { auth.Me(c, d) })

		// GET /api/auth/verify?token=		-> Consumes a verification token
		a.GET("/verify", func(c *gin.Context) { auth.Verify(c, d) })

		// POST /api/auth/verify/resend		-> Sends a new verification mail
		a.POST("/verify/resend", func(c *gin.Context) { auth.ResendVerification(c, d) })

		// POST /api/auth/reset-request		-> Sends a password reset mail
		a.POST("/reset-request", func(c *gin.Context) { auth.ResetRequest(c, d) })

		// PATCH /api/auth/reset-confirm	-> Consumes a reset token and sets a new password
		a.PATCH("/reset-confirm", func(c *gin.Context) { auth.ResetConfirm(c, d) })
	}

	u := m.Group("/user")
	{
		// PATCH /api/user/update		-> Edits the profile of the session user
		u.PATCH("/update", func(c *gin.Context) { user.Update(c, d) })

		// PATCH /api/user/change-password	-> Replaces the password after checking the old one
		u.PATCH("/change-password", func(c *gin.Context) { user.ChangePassword(c, d) })

		// GET /api/user/export			-> Downloads everything stored about the session user
		u.GET("/export", func(c *gin.Context) { user.Export(c, d) })
	}

	p := m.Group("/privacy")
	{
		// GET /api/privacy/consents		-> Lists the consent history of the session user
		p.GET("/consents", func(c *gin.Context) { privacy.Consents(c, d) })

		// PATCH /api/privacy/update		-> Appends changes to the optional consents
		p.PATCH("/update", func(c *gin.Context) { privacy.Update(c, d) })
	}

	// POST /api/consent/record		-> Records health data consent for the session user
	m.POST("/consent/record", func(c *gin.Context) { privacy.RecordConsent(c, d) })

	return router, nil
}

func makeLogger(level string) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	if l, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(l)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}
