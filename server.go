package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"update-server/netaddr"
	"update-server/routes"
)

const (
	rateLimitCleanupInterval = time.Minute
	rateLimitIdleAge         = 10 * time.Minute
)

// newHandler assembles the routes and the middleware stack. The returned
// limiter is nil unless download rate limiting is enabled.
func newHandler(config *Config) (http.Handler, *RateLimiter, error) {
	opts := routes.Options{
		DownloadPath:   config.DownloadPath,
		Source:         config.Source,
		AttachmentName: config.AttachmentName,
	}

	var limiter *RateLimiter
	if config.RateLimitEnabled {
		limiter = NewRateLimiter(config.RateLimitRPM, config.RateLimitBurst)
		opts.DownloadMiddleware = func(next http.Handler) http.Handler {
			return rateLimitMiddleware(limiter, config.TrustForwardedFor, next)
		}
	}

	router, err := routes.InitializeRoutes(opts)
	if err != nil {
		return nil, nil, errors.Wrap(err, "initialize routes")
	}

	return loggingMiddleware(errorHandlingMiddleware(router)), limiter, nil
}

// run listens on the configured address and serves until ctx is cancelled.
func run(ctx context.Context, config *Config) error {
	ln, err := net.Listen("tcp", config.Addr())
	if err != nil {
		return errors.Wrapf(err, "listen on %s", config.Addr())
	}
	return serve(ctx, config, ln)
}

// serve runs the server on ln and shuts it down gracefully once ctx is done.
func serve(ctx context.Context, config *Config, ln net.Listener) error {
	handler, limiter, err := newHandler(config)
	if err != nil {
		ln.Close()
		return err
	}

	if limiter != nil {
		go limiter.runCleanup(ctx, rateLimitCleanupInterval, rateLimitIdleAge)
	}

	srv := &http.Server{Handler: handler}

	port := config.Port
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	log.WithFields(log.Fields{
		"url":        fmt.Sprintf("http://%s", net.JoinHostPort(netaddr.LocalIPv4(), strconv.Itoa(port))),
		"source":     config.Source,
		"attachment": config.AttachmentName,
	}).Info("listening")

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(config.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
