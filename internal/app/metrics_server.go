package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pushwatch/pkg/logx"
)

func (a *App) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle(a.metricsPath, a.metrics.Handler())
	srv := &http.Server{
		Addr:              a.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.metricsSrv = srv

	a.sup.Go("metrics.http", func(ctx context.Context) error {
		a.log.Info("metrics listening", logx.String("addr", srv.Addr), logx.String("path", a.metricsPath))
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	})
}
