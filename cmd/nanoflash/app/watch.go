package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"cloupeer.io/nanoflash/cmd/nanoflash/app/options"
	"cloupeer.io/nanoflash/internal/pkg/metrics"
	genericoptions "cloupeer.io/nanoflash/pkg/options"
	"cloupeer.io/nanoflash/pkg/log"
)

const debounce = 500 * time.Millisecond

// runWatch deploys once, then again after every change of the application
// file, until ctx is done. A failed deploy is logged and watching goes on.
func runWatch(ctx context.Context, opts *options.Options, flags deployFlags) error {
	g, ctx := errgroup.WithContext(ctx)

	if opts.Http.Addr != "" {
		g.Go(func() error { return serveHTTP(ctx, opts.Http) })
	}
	g.Go(func() error {
		return watchFile(ctx, flags.Application, func(ctx context.Context) {
			if err := runUpdate(ctx, opts, flags, false); err != nil {
				log.Error(err, "Deploy failed, waiting for the next change", "app", flags.Application)
			}
		})
	})
	return g.Wait()
}

// watchFile calls fn now and after each settled change of path. The parent
// directory is watched so that editors replacing the file are noticed.
func watchFile(ctx context.Context, path string, fn func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	log.Info("Watching application", "path", abs)

	fn(ctx)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || (!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create)) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("File watcher error", "error", err)
		case <-timer.C:
			fn(ctx)
		}
	}
}

func newRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func serveHTTP(ctx context.Context, opts *genericoptions.HttpOptions) error {
	server := &http.Server{
		Addr:         opts.Addr,
		Handler:      newRouter(),
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("Serving health and metrics", "address", opts.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve %s: %w", opts.Addr, err)
	}
	return nil
}
