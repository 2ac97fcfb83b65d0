package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/fulldump/box"

	"github.com/itemdb/itemdb/api"
	"github.com/itemdb/itemdb/configuration"
	"github.com/itemdb/itemdb/mirror"
	"github.com/itemdb/itemdb/store"
)

var VERSION = "dev"

const snapshotFilename = "items_backup.json"

func Bootstrap(c configuration.Configuration) (start, stop func(), err error) {

	logger := slog.Default().With("component", "bootstrap")

	err = os.MkdirAll(c.Dir, 0755)
	if err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	m, err := mirror.NewSQLiteMirror(c.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open mirror: %w", err)
	}

	s := store.NewStore(&store.Config{
		Filename:      path.Join(c.Dir, snapshotFilename),
		MirrorTimeout: time.Duration(c.MirrorTimeoutMs) * time.Millisecond,
	}, m)

	b := api.Build(s, VERSION)
	b.WithInterceptors(
		api.AccessLog(slog.Default().With("component", "api")),
		api.InterceptorUnavailable(s),
		api.RecoverFromPanic,
		api.PrettyErrorInterceptor,
	)

	server := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		m.Close()
		return nil, nil, fmt.Errorf("listen on %s: %w", c.HttpAddr, err)
	}
	logger.Info("listening", "addr", c.HttpAddr)

	stop = func() {
		server.Shutdown(context.Background())
		err := s.Stop()
		if err != nil {
			logger.Error("stop store", "error", err)
		}
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		logger.Info("signal received", "signal", sig.String())
		stop()
	}()

	start = func() {

		// Recovery runs to completion before the listener serves: no request
		// ever observes the collection mid-rebuild.
		err := s.Load()
		if err != nil {
			logger.Error("load store", "error", err)
			ln.Close()
			return
		}

		wg := &sync.WaitGroup{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := server.Serve(ln)
			if err != nil && err != http.ErrServerClosed {
				logger.Error("serve", "error", err)
			}
		}()

		wg.Wait()
	}

	return start, stop, nil
}
