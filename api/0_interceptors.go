package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/fulldump/box"

	"github.com/itemdb/itemdb/store"
)

var errUnavailable = errors.New("temporary unavailable")

func AccessLog(l *slog.Logger) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			r := box.GetRequest(ctx)
			now := time.Now()
			defer func() {
				l.Info("request", "remote", formatRemoteAddr(r), "method", r.Method, "url", r.URL.String(), "elapsed", time.Since(now))
			}()

			next(ctx)
		}
	}
}

func formatRemoteAddr(r *http.Request) string {
	xorigin := strings.TrimSpace(strings.Split(
		r.Header.Get("X-Forwarded-For"), ",")[0])
	if xorigin != "" {
		return xorigin
	}

	// RemoteAddr may carry no port, e.g. on requests forged in tests
	i := strings.LastIndex(r.RemoteAddr, ":")
	if i < 0 {
		return r.RemoteAddr
	}

	return r.RemoteAddr[0:i]
}

// InterceptorUnavailable rejects traffic while the store is recovering or
// shutting down, so no request observes a half-rebuilt collection.
func InterceptorUnavailable(s *store.Store) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {

			status := s.GetStatus()
			if status != store.StatusOperating {
				box.SetError(ctx, fmt.Errorf("%w: %s", errUnavailable, status))
				return
			}
			next(ctx)
		}
	}
}

func RecoverFromPanic(next box.H) box.H {
	return func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				debug.PrintStack()
				box.SetError(ctx, fmt.Errorf("internal error: %v", r))
			}
		}()
		next(ctx)
	}
}

// PrettyErrorInterceptor maps typed store errors to status codes and renders
// every error with the same envelope.
func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)

		writeError := func(status int, description string) {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(JSON{
				"error": JSON{
					"message":     err.Error(),
					"description": description,
				},
			})
		}

		var duplicate *store.DuplicateError
		var requestErr *RequestError

		switch {
		case errors.As(err, &duplicate):
			writeError(http.StatusBadRequest, fmt.Sprintf("an item with the same (code, unit, age, cost) already exists with id %d", duplicate.ExistingID))
		case errors.Is(err, store.ErrIDConflict):
			writeError(http.StatusConflict, "choose a different id or remove the existing item first")
		case errors.Is(err, store.ErrNotFound):
			writeError(http.StatusNotFound, "no item with that id is in the collection")
		case errors.Is(err, store.ErrInvalidSortField):
			writeError(http.StatusBadRequest, "sort_by must be one of: id, code, unit, age, cost")
		case errors.As(err, &requestErr):
			writeError(http.StatusBadRequest, "malformed request")
		case errors.Is(err, errUnavailable):
			writeError(http.StatusServiceUnavailable, "the store is not serving traffic yet, retry shortly")
		case errors.Is(err, box.ErrResourceNotFound):
			writeError(http.StatusNotFound, fmt.Sprintf("resource '%s' not found", box.GetRequest(ctx).URL.String()))
		case errors.Is(err, box.ErrMethodNotAllowed):
			writeError(http.StatusMethodNotAllowed, fmt.Sprintf("method '%s' not allowed", box.GetRequest(ctx).Method))
		default:
			if _, ok := err.(*json.SyntaxError); ok {
				writeError(http.StatusBadRequest, "malformed JSON")
				return
			}
			writeError(http.StatusInternalServerError, "unexpected error")
		}
	}
}
