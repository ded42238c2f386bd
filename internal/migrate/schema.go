package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"geoname/internal/logger"
)

// 背景：首次运行自动创建城市表与索引，保障导入与加载
// 约束：使用 IF NOT EXISTS，可重复执行
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _geoname_cities (
            geoname_id BIGINT PRIMARY KEY,
            name TEXT NOT NULL,
            country_code TEXT NOT NULL DEFAULT '',
            country_name TEXT NOT NULL DEFAULT '',
            admin1 TEXT NOT NULL DEFAULT '',
            admin2 TEXT NOT NULL DEFAULT '',
            timezone TEXT NOT NULL DEFAULT '',
            continent TEXT NOT NULL DEFAULT '',
            currency_code TEXT NOT NULL DEFAULT '',
            latitude DOUBLE PRECISION NOT NULL,
            longitude DOUBLE PRECISION NOT NULL,
            geohash TEXT NOT NULL DEFAULT '',
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_geoname_cities_geohash ON _geoname_cities(geohash text_pattern_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_geoname_cities_country ON _geoname_cities(country_code)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("schema stmt %d: %w", i, err)
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
