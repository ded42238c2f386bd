// 程序入口：读取配置、初始化数据集来源与函数注册表并启动 HTTP 服务；路由在 internal/api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"geoname/internal/api"
	"geoname/internal/atlas"
	"geoname/internal/geoname"
	"geoname/internal/ingest"
	"geoname/internal/logger"
	"geoname/internal/metrics"
	"geoname/internal/middleware"
	"geoname/internal/migrate"
	"geoname/internal/store"
	"geoname/internal/udf"
	"geoname/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		apiBase = "/api"
	}
	dataDir := os.Getenv("ATLAS_DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join("data", "atlas")
	}
	source := strings.ToLower(os.Getenv("ATLAS_SOURCE"))
	l.Debug("config", "api_base", apiBase, "data_dir", dataDir, "source", source)

	// postgres 来源：建表后把加载函数替换为读库
	var st *store.Store
	if source == "postgres" {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
			os.Exit(1)
		}
		if err := migrate.EnsureSchema(ctx, db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		st = store.AttachDB(db)
		atlas.SetLoader(func() (*atlas.Dataset, error) {
			c, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			return st.LoadDataset(c)
		})
		l.Info("atlas_source_postgres")
	}

	// 预热：失败不退出，函数调用时会再次尝试加载并把错误返回给调用方
	if ds, err := atlas.Default(); err != nil {
		l.Error("atlas_warmup_error", "err", err)
	} else {
		metrics.DatasetCities.Set(float64(ds.Len()))
		l.Info("atlas_warmup_ok", "cities", ds.Len())
	}

	reg := udf.NewRegistry()
	fns := geoname.New(geoname.DefaultIndex)
	if err := fns.Register(reg); err != nil {
		l.Error("udf_register_error", "err", err)
		os.Exit(1)
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else if err := rc.Ping(ctx).Err(); err != nil {
		l.Error("redis_ping_error", "err", err)
	} else {
		l.Info("redis_ping_ok")
	}
	ttl := time.Hour
	if s := os.Getenv("GEONAME_CACHE_TTL_S"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			ttl = time.Duration(n) * time.Second
		}
	}
	svc := api.NewService(fns, rc, ttl)

	if os.Getenv("ATLAS_REFRESH_ENABLED") == "true" && source != "mmdb" {
		hour := 3
		if s := os.Getenv("ATLAS_REFRESH_HOUR"); s != "" {
			if n, e := strconv.Atoi(s); e == nil && n >= 0 && n < 24 {
				hour = n
			}
		}
		baseURL := os.Getenv("GEONAMES_BASE_URL")
		if baseURL == "" {
			baseURL = ingest.DefaultBaseURL
		}
		client := &http.Client{Timeout: 10 * time.Minute}
		ingest.StartWeekly(ctx, time.UTC, time.Monday, hour, func(ctx context.Context) error {
			if err := ingest.Download(ctx, client, baseURL, dataDir, ingest.DefaultFiles); err != nil {
				return err
			}
			ds, err := atlas.LoadGeoNamesDir(dataDir)
			if err != nil {
				return err
			}
			if st != nil {
				if _, err := ingest.ToPostgres(ctx, st, ds); err != nil {
					return err
				}
			} else if _, err := ingest.ToSnapshot(dataDir, ds); err != nil {
				return err
			}
			if err := atlas.Reload(); err != nil {
				return err
			}
			metrics.DatasetCities.Set(float64(ds.Len()))
			return nil
		})
	}

	mux := http.NewServeMux()
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, api.BuildRoutes(svc, reg)))
	mux.Handle("/metrics", metrics.Handler())

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()

	var err error
	if os.Getenv("TLS_ENABLE") == "true" {
		certPath := os.Getenv("TLS_CERT_PATH")
		keyPath := os.Getenv("TLS_KEY_PATH")
		if certPath == "" {
			certPath = filepath.Join("data", "certs", "server.crt")
		}
		if keyPath == "" {
			keyPath = filepath.Join("data", "certs", "server.key")
		}
		if e := utils.EnsureSelfSignedCert(certPath, keyPath, "geoname.local"); e != nil {
			l.Error("tls_cert_error", "err", e)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		err = s.ListenAndServeTLS(certPath, keyPath)
	} else {
		l.Info("listening", "addr", addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("server_stopped")
}
