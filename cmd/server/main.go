package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/cli"
	"github.com/tropicaldog17/audtracker/internal/handlers"
	"github.com/tropicaldog17/audtracker/internal/repositories"
)

func main() {
	cli.Main("server", func(ctx context.Context, app *cli.App) error {
		// The archive only backs /api/rates and the summary block
		var archive repositories.ExchangeRateRepository
		if repo, err := app.Archive(); err != nil {
			app.Logger.Warn("rate archive unavailable", zap.Error(err))
		} else {
			archive = repo
			app.Logger.Info("rate archive connected", zap.String("driver", app.Config.Database.Driver))
		}

		router := handlers.NewRouter(handlers.NewDashboardHandler(app.Config.DataDir, archive, app.Logger))
		srv := &http.Server{
			Addr:              ":" + app.Config.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			app.Logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("data_dir", app.Config.DataDir))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		app.Logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	})
}
