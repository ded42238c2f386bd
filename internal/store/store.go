// 包 store：城市数据集的 PostgreSQL 持久化，供导入工具写入、服务启动时加载
package store

import (
	"context"
	"database/sql"
	"fmt"

	geohash "github.com/TomiHiltunen/geohash-golang"
	_ "github.com/lib/pq"

	"geoname/internal/atlas"
	"geoname/internal/logger"
)

// 每个事务写入的行数
const upsertBatch = 5000

// Store：持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

const selectCities = `SELECT geoname_id, name, country_code, country_name, admin1, admin2,
    timezone, continent, currency_code, latitude, longitude, geohash
    FROM _geoname_cities ORDER BY geoname_id`

// LoadCities：读取全部城市
func (s *Store) LoadCities(ctx context.Context) ([]atlas.City, error) {
	rows, err := s.db.QueryContext(ctx, selectCities)
	if err != nil {
		return nil, fmt.Errorf("query cities: %w", err)
	}
	defer rows.Close()
	var out []atlas.City
	for rows.Next() {
		var c atlas.City
		if err := rows.Scan(&c.GeoNameID, &c.Name, &c.CountryCode, &c.CountryName, &c.Admin1, &c.Admin2,
			&c.TimeZone, &c.Continent, &c.CurrencyCode, &c.Latitude, &c.Longitude, &c.Geohash); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.L().Debug("store_cities_loaded", "count", len(out))
	return out, nil
}

// LoadDataset：读取全部城市并构建数据集，可直接作为 atlas.SetLoader 的加载函数
func (s *Store) LoadDataset(ctx context.Context) (*atlas.Dataset, error) {
	cs, err := s.LoadCities(ctx)
	if err != nil {
		return nil, err
	}
	return atlas.NewDataset(cs), nil
}

// 文档注释：批量 UPSERT 城市
// 背景：按 geoname_id 冲突更新全部字段；每 5000 行一个事务，降低锁持有与 WAL 压力。
// 约束：geohash 为空时在写入前补算。
func (s *Store) UpsertCities(ctx context.Context, cities []atlas.City) (int, error) {
	n := 0
	for start := 0; start < len(cities); start += upsertBatch {
		end := start + upsertBatch
		if end > len(cities) {
			end = len(cities)
		}
		if err := s.upsertBatch(ctx, cities[start:end]); err != nil {
			return n, err
		}
		n += end - start
		logger.L().Debug("store_upsert_batch", "done", n, "total", len(cities))
	}
	return n, nil
}

func (s *Store) upsertBatch(ctx context.Context, cities []atlas.City) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO _geoname_cities(geoname_id, name, country_code, country_name,
        admin1, admin2, timezone, continent, currency_code, latitude, longitude, geohash)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (geoname_id) DO UPDATE SET name=EXCLUDED.name, country_code=EXCLUDED.country_code,
        country_name=EXCLUDED.country_name, admin1=EXCLUDED.admin1, admin2=EXCLUDED.admin2,
        timezone=EXCLUDED.timezone, continent=EXCLUDED.continent, currency_code=EXCLUDED.currency_code,
        latitude=EXCLUDED.latitude, longitude=EXCLUDED.longitude, geohash=EXCLUDED.geohash, updated_at=now()`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range cities {
		gh := c.Geohash
		if gh == "" {
			gh = geohash.Encode(c.Latitude, c.Longitude)
		}
		if _, err := stmt.ExecContext(ctx, c.GeoNameID, c.Name, c.CountryCode, c.CountryName, c.Admin1, c.Admin2,
			c.TimeZone, c.Continent, c.CurrencyCode, c.Latitude, c.Longitude, gh); err != nil {
			return fmt.Errorf("upsert city %d: %w", c.GeoNameID, err)
		}
	}
	return tx.Commit()
}

// CountCities：城市总数
func (s *Store) CountCities(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM _geoname_cities").Scan(&n)
	return n, err
}
