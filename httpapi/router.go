package httpapi

import (
	"net/http"

	"github.com/campuslink/verify"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Config carries the transport-level settings of the API.
type Config struct {
	// AllowedOrigins is the CORS allowlist.
	AllowedOrigins []string
	// JWTSecret verifies the portal-issued bearer tokens on the
	// email-change routes. Empty disables those routes.
	JWTSecret []byte
	// SendRatePerSecond / SendBurst throttle the issuance endpoints per
	// IP before the engine's Redis limiters are consulted.
	SendRatePerSecond float64
	SendBurst         int
}

// NewRouter builds and returns the API router.
func NewRouter(cfg Config, engine *verify.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(ClientIP)

	if cfg.SendRatePerSecond <= 0 {
		cfg.SendRatePerSecond = 5
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 10
	}
	sensitiveRL := NewRateLimiter(rate.Limit(cfg.SendRatePerSecond), cfg.SendBurst)

	verifyH := NewVerifyHandler(engine)
	healthH := NewHealthHandler()

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check", healthH.Ping)
		r.Get("/verify/availability", verifyH.Availability)
		r.With(sensitiveRL.Limit).Post("/verify/send", verifyH.Send)
		r.With(sensitiveRL.Limit).Post("/verify/confirm", verifyH.Confirm)

		// ── Authenticated routes ─────────────────────────────────────────────
		if len(cfg.JWTSecret) > 0 {
			r.Group(func(r chi.Router) {
				r.Use(Auth(cfg.JWTSecret))

				r.With(sensitiveRL.Limit).Post("/email-change/send", verifyH.SendEmailChange)
				r.With(sensitiveRL.Limit).Post("/email-change/confirm", verifyH.ConfirmEmailChange)
			})
		}
	})

	return r
}
