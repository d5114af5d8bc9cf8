package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/raagfm/raag/clock"
	"github.com/raagfm/raag/config"
	"github.com/raagfm/raag/db"
	"github.com/raagfm/raag/service/catalog"
	"github.com/raagfm/raag/service/fetcher"
	"github.com/raagfm/raag/service/library"
	"github.com/raagfm/raag/service/otp"
	"github.com/raagfm/raag/service/recommend"
	"github.com/raagfm/raag/service/stats"
	"github.com/raagfm/raag/service/tracker"
	"github.com/raagfm/raag/session"
)

type application struct {
	logger         *log.Logger
	database       *db.DB
	clock          *clock.Service
	sessionManager *session.Manager
	catalog        *catalog.Service
	library        *library.Service
	recommender    *recommend.Engine
	tracker        *tracker.Service
	stats          *stats.Service
	fetcher        *fetcher.Service
	otp            *otp.Service
}

func main() {
	config.Load()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "raag",
	})

	os.MkdirAll("./data", 0o755)

	clockService := clock.New(logger.WithPrefix("clock"))
	clockService.Sync()

	database, err := db.New(viper.GetString("db.path"), clockService.Zone())
	if err != nil {
		logger.Fatal("connecting to database", "err", err)
	}
	if err := database.Initialize(); err != nil {
		logger.Fatal("initializing database", "err", err)
	}

	sessionManager := session.NewManager(database, logger.WithPrefix("session"))

	catalogService := catalog.New(
		viper.GetString("catalog.base_url"),
		time.Duration(viper.GetInt("catalog.cache_ttl_seconds"))*time.Second,
		logger.WithPrefix("catalog"),
	)

	libraryService := library.New(viper.GetString("library.music_path"), logger.WithPrefix("library"))

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	recommender := recommend.New(catalogService, rng, logger.WithPrefix("recommend"))

	trackerService := tracker.New(database, clockService, logger.WithPrefix("tracker"))
	statsService := stats.New(database, clockService)

	downloadDir := viper.GetString("downloads.path")
	os.MkdirAll(downloadDir, 0o755)
	fetcherService := fetcher.New(database, clockService, logger.WithPrefix("fetcher"),
		catalogDownloadStrategy(catalogService, viper.GetString("catalog.base_url"), downloadDir))

	mailer := &smtpMailer{
		host:     viper.GetString("smtp.host"),
		port:     viper.GetInt("smtp.port"),
		username: viper.GetString("smtp.user"),
		password: viper.GetString("smtp.password"),
		from:     viper.GetString("smtp.from"),
	}
	otpService := otp.New(database, mailer, clockService, logger.WithPrefix("otp"))

	app := &application{
		logger:         logger,
		database:       database,
		clock:          clockService,
		sessionManager: sessionManager,
		catalog:        catalogService,
		library:        libraryService,
		recommender:    recommender,
		tracker:        trackerService,
		stats:          statsService,
		fetcher:        fetcherService,
		otp:            otpService,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresh := time.Duration(viper.GetInt("library.refresh_seconds")) * time.Second
	go libraryService.Run(ctx, refresh)

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := sessionManager.PurgeExpired(); err != nil {
					logger.Error("purging sessions", "err", err)
				}
				if err := database.PurgeExpiredOTPs(clockService.Now()); err != nil {
					logger.Error("purging one-time codes", "err", err)
				}
			}
		}
	}()

	serverAddr := fmt.Sprintf("%s:%s", viper.GetString("server.host"), viper.GetString("server.port"))
	logger.Info("server running", "addr", serverAddr)
	logger.Fatal(http.ListenAndServe(serverAddr, app.routes()))
}

// catalogDownloadStrategy streams a track's audio from the catalog API into
// the local download directory.
func catalogDownloadStrategy(cat *catalog.Service, baseURL, dir string) fetcher.Strategy {
	client := &http.Client{Timeout: 5 * time.Minute}
	return fetcher.StrategyFunc{
		StrategyName: "catalog",
		Func: func(ctx context.Context, id string) (*fetcher.Result, error) {
			track, err := cat.GetTrack(ctx, id)
			if err != nil {
				return nil, err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet,
				fmt.Sprintf("%s/download/%s", baseURL, id), nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
			}

			path := filepath.Join(dir, id+".m4a")
			f, err := os.Create(path)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			if _, err := io.Copy(f, resp.Body); err != nil {
				os.Remove(path)
				return nil, err
			}

			return &fetcher.Result{
				Path:   path,
				Title:  track.Title,
				Artist: track.Artist,
				Album:  track.Album,
			}, nil
		},
	}
}
