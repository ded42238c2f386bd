package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"geoname/internal/atlas"
	"geoname/internal/ingest"
	"geoname/internal/logger"
	"geoname/internal/migrate"
	"geoname/internal/store"
	"geoname/internal/utils"
)

// 文档注释：城市数据集导入工具
// 背景：从数据目录的 GeoNames 导出（INGEST_SOURCE=geonames，默认）或 MaxMind City 库（INGEST_SOURCE=mmdb）构建数据集，
// 写入 PostgreSQL（INGEST_TARGET=postgres，默认）或数据目录下的 cities.json（INGEST_TARGET=json）。
// 约束：INGEST_DOWNLOAD=true 时先从 GEONAMES_BASE_URL 下载导出文件；任何一步失败以非零码退出。
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := os.Getenv("ATLAS_DATA_DIR")
	if dir == "" {
		dir = filepath.Join("data", "atlas")
	}
	src := strings.ToLower(os.Getenv("INGEST_SOURCE"))
	target := strings.ToLower(os.Getenv("INGEST_TARGET"))
	if target == "" {
		target = "postgres"
	}
	l.Info("ingest_begin", "dir", dir, "source", src, "target", target)

	if os.Getenv("INGEST_DOWNLOAD") == "true" && src != "mmdb" {
		baseURL := os.Getenv("GEONAMES_BASE_URL")
		if baseURL == "" {
			baseURL = ingest.DefaultBaseURL
		}
		client := &http.Client{Timeout: 10 * time.Minute}
		if err := ingest.Download(ctx, client, baseURL, dir, ingest.DefaultFiles); err != nil {
			l.Error("ingest_download_error", "err", err)
			os.Exit(1)
		}
	}

	var (
		ds  *atlas.Dataset
		err error
	)
	t0 := time.Now()
	if src == "mmdb" {
		ds, err = atlas.LoadFromEnvSource("mmdb", dir)
	} else {
		ds, err = atlas.LoadGeoNamesDir(dir)
	}
	if err != nil {
		l.Error("ingest_load_error", "err", err)
		os.Exit(1)
	}
	l.Info("ingest_loaded", "cities", ds.Len(), "ms", time.Since(t0).Milliseconds())
	if ds.Len() == 0 {
		l.Error("ingest_empty_dataset", "dir", dir)
		os.Exit(1)
	}

	switch target {
	case "json":
		if _, err := ingest.ToSnapshot(dir, ds); err != nil {
			l.Error("ingest_snapshot_error", "err", err)
			os.Exit(1)
		}
	case "postgres":
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := migrate.EnsureSchema(ctx, db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		if _, err := ingest.ToPostgres(ctx, store.AttachDB(db), ds); err != nil {
			l.Error("ingest_postgres_error", "err", err)
			os.Exit(1)
		}
	default:
		l.Error("ingest_target_unknown", "target", target)
		os.Exit(1)
	}
	l.Info("ingest_done", "ms", time.Since(t0).Milliseconds())
}
