package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"perfstore/internal/cache"
	"perfstore/internal/chart"
	"perfstore/internal/compress"
	"perfstore/internal/config"
	"perfstore/internal/core"
	"perfstore/internal/dashboard"
	"perfstore/internal/db"
	"perfstore/internal/hdr"
	"perfstore/internal/ledger"
	"perfstore/internal/logging"
	"perfstore/internal/server"
	"perfstore/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

// run returns the process exit code, so deferred cleanup completes before exit.
func run() int {
	configPath := flag.String("config", "", "YAML configuration file")
	report := flag.String("report", "", "render the charts of an HDR log file and exit")
	remote := flag.String("server", "", "render reports from a running store at this URL and exit")
	runs := flag.String("runs", "", "run ids for -server, one for a run report, several separated by '-' for a comparison")
	out := flag.String("out", ".", "output directory for rendered charts")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *report != "":
		err = renderFile(cfg, *report, *out, log)
	case *remote != "":
		err = renderRemote(ctx, *remote, *runs, *out, log)
	default:
		err = serve(ctx, cfg, log)
	}

	if err != nil {
		log.Error("perfstore failed", zap.Error(err))

		return 1
	}

	return 0
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	database, closeDB, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB()

	objects, err := openStorage(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}

	hdrService, err := hdr.NewService(cfg.HDR.MaxDataPoints, log)
	if err != nil {
		return err
	}

	format, err := compress.ParseFormat(cfg.Storage.Format)
	if err != nil {
		return err
	}

	instruments, err := core.NewInstruments(otel.GetMeterProvider().Meter("perfstore"))
	if err != nil {
		return err
	}

	opts := []core.Option{
		core.WithLogger(log),
		core.WithInstruments(instruments),
		core.WithStorageFormat(format),
	}

	summaries, closeCache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	if summaries != nil {
		opts = append(opts, core.WithCache(summaries))
	}

	anchor, closeLedger, err := openLedger(cfg.Ledger)
	if err != nil {
		return err
	}
	defer closeLedger()

	if anchor != nil {
		batcher := core.NewMerkleBatcher(anchor, cfg.Ledger.BatchSize, cfg.Ledger.MaxWait, log)
		defer batcher.Close()

		opts = append(opts, core.WithAnchoring(batcher))
	}

	service := core.NewService(database, objects, hdrService, opts...)

	srv := server.New(cfg.Server.Addr, service,
		server.WithBasePath(cfg.Server.BasePath),
		server.WithReadTimeout(cfg.Server.ReadTimeout),
		server.WithWriteTimeout(cfg.Server.WriteTimeout),
		server.WithBodyLimit(cfg.Server.BodyLimit),
		server.WithLogger(log),
	)

	if err := srv.Start(ctx); err != nil {
		return err
	}

	log.Info("perfstore listening",
		zap.String("addr", srv.Address()),
		zap.String("base_path", cfg.Server.BasePath),
		zap.String("database", cfg.Database.Driver),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("cache", cfg.Cache.Driver),
		zap.String("ledger", cfg.Ledger.Driver))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func openDatabase(cfg config.Database) (core.Database, func(), error) {
	if cfg.Driver != "postgres" {
		return db.NewMemoryDB(), func() {}, nil
	}

	pg, err := db.NewPostgresDB(db.PostgresConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.Name,
		SSLMode:  cfg.SSLMode,
	})
	if err != nil {
		return nil, nil, err
	}

	return pg, func() { _ = pg.Close() }, nil
}

func openStorage(ctx context.Context, cfg config.Storage, log *zap.Logger) (core.ObjectStorage, error) {
	if cfg.Driver != "minio" {
		return storage.NewMemoryStorage(), nil
	}

	return storage.NewMinioStorage(ctx, storage.MinioConfig{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Secure:    cfg.Secure,
	}, log)
}

func openCache(ctx context.Context, cfg config.Cache) (core.SummaryCache, func(), error) {
	switch cfg.Driver {
	case "memory":
		return cache.NewMemory(cfg.TTL), func() {}, nil
	case "redis":
		r, err := cache.NewRedis(ctx, cache.RedisConfig{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB, TTL: cfg.TTL})
		if err != nil {
			return nil, nil, err
		}

		return r, func() { _ = r.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

func openLedger(cfg config.Ledger) (core.Ledger, func(), error) {
	switch cfg.Driver {
	case "mock":
		return ledger.NewMockLedger(cfg.MockDelay), func() {}, nil
	case "fabric":
		f, err := ledger.NewFabricLedger(ledger.FabricConfig{
			MSPID:        cfg.MSPID,
			CertPath:     cfg.CertPath,
			KeyDir:       cfg.KeyDir,
			TLSCertPath:  cfg.TLSCertPath,
			PeerEndpoint: cfg.PeerEndpoint,
			GatewayPeer:  cfg.GatewayPeer,
			Channel:      cfg.Channel,
			Chaincode:    cfg.Chaincode,
		})
		if err != nil {
			return nil, nil, err
		}

		return f, f.Close, nil
	default:
		return nil, func() {}, nil
	}
}

// renderFile draws the charts of one log file without a store.
func renderFile(cfg config.Config, path, outDir string, log *zap.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ewrap.Wrapf(err, "read %s", path)
	}

	text, err := compress.Decompress(compress.Detect(raw), raw, 0)
	if err != nil {
		return err
	}

	hdrService, err := hdr.NewService(cfg.HDR.MaxDataPoints, log)
	if err != nil {
		return err
	}

	data, err := hdrService.Read(bytes.NewReader(text))
	if err != nil {
		return err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	canvas := chart.NewCanvas()
	chartRuns := []chart.Run{{Name: name, Data: data}}

	for _, kind := range chart.Kinds {
		if err := chart.Plot(canvas, kind, chart.Target(name, kind), chartRuns, true); err != nil {
			return err
		}
	}

	return writeCharts(canvas, outDir, log)
}

// renderRemote draws a run report, or a comparison of several runs, from a
// running store.
func renderRemote(ctx context.Context, base, runs, outDir string, log *zap.Logger) error {
	var ids []int64

	for _, part := range strings.Split(runs, "-") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return ewrap.Wrapf(err, "run id %q", part)
		}

		ids = append(ids, id)
	}

	canvas := chart.NewCanvas()
	controller := dashboard.NewController(dashboard.NewClient(base), canvas, log)
	defer controller.Leave()

	var err error
	if len(ids) == 1 {
		err = controller.ReportRun(ctx, ids[0])
	} else {
		err = controller.ReportComparison(ctx, ids)
	}

	if err != nil {
		return err
	}

	state := controller.State()

	var failed []error

	for _, op := range state.Order {
		if st := state.Ops[op]; st.Phase == dashboard.Failed {
			failed = append(failed, ewrap.Newf("%s: %s", op, st.Err))
		}
	}

	if err := writeCharts(canvas, outDir, log); err != nil {
		return err
	}

	return errors.Join(failed...)
}

func writeCharts(canvas *chart.Canvas, outDir string, log *zap.Logger) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ewrap.Wrapf(err, "create %s", outDir)
	}

	for _, target := range canvas.Targets() {
		path := filepath.Join(outDir, target+".png")

		f, err := os.Create(path)
		if err != nil {
			return ewrap.Wrapf(err, "create %s", path)
		}

		err = canvas.Render(target, chart.PNG, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}

		if err != nil {
			return err
		}

		log.Info("chart written", zap.String("path", path))
	}

	return nil
}
