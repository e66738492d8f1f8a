package handlers

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/paygate"
)

// Env is the deployment environment the API runs in.
type Env string

const (
	EnvProduction  Env = "production"
	EnvDevelopment Env = "development"
)

// ValidEnvs contains all recognized environment values.
var ValidEnvs = map[Env]bool{
	EnvProduction:  true,
	EnvDevelopment: true,
}

// ParseEnv returns the environment for s, defaulting to production.
func ParseEnv(s string) Env {
	if env := Env(s); ValidEnvs[env] {
		return env
	}
	return EnvProduction
}

// DefaultAllowedOrigins are the dashboard origins accepted in every environment.
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

// CORS returns the cross-origin middleware for env. Development accepts any
// origin; otherwise only the configured origins are reflected.
func CORS(env Env, extraOrigins ...string) func(http.Handler) http.Handler {
	origins := slices.Concat(DefaultAllowedOrigins, extraOrigins)
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-BSV-Payment"},
		ExposedHeaders: []string{
			paygate.HeaderPaymentVersion,
			paygate.HeaderPaymentSatoshisRequired,
			paygate.HeaderPaymentDerivationPrefix,
		},
		AllowCredentials: true,
		MaxAge:           86400,
	}
	if env == EnvDevelopment {
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	}
	return cors.Handler(opts)
}
