package sentry

import (
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
)

// Init configures the global Sentry client. With an empty DSN Sentry stays
// disabled and every capture call is a no-op.
func Init(dsn, environment string) (flush func()) {
	if dsn == "" {
		log.Println("SENTRY_DSN not set, Sentry disabled")
		return func() {}
	}
	if environment == "" {
		environment = "development"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		log.Printf("Sentry initialization failed: %v", err)
		return func() {}
	}

	log.Println("Sentry initialized")
	return func() { sentry.Flush(2 * time.Second) }
}

// Middleware attaches a per-request hub and reports panics before passing
// them on to the next recoverer.
func Middleware(next http.Handler) http.Handler {
	return sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(next)
}
