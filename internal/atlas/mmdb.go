package atlas

import (
	"fmt"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"

	"geoname/internal/logger"
)

// 文档注释：从 MaxMind City 库（GeoLite2-City/GeoIP2-City）提取城市质心
// 背景：mmdb 按网段存储城市信息，遍历全部网段并按城市 GeoNameID 去重，取首次出现的坐标作为近似质心。
// 约束：名称取 en；一级/二级行政区取 subdivisions 前两项；货币字段 mmdb 不提供，由 countries 字典补齐（可为空）。
func LoadMMDB(path string, countries map[string]Country) (*Dataset, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()
	seen := make(map[uint]struct{})
	var cities []City
	networks := db.Networks(maxminddb.SkipAliasedNetworks)
	for networks.Next() {
		var rec geoip2.City
		if _, err := networks.Network(&rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		id := rec.City.GeoNameID
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		cities = append(cities, cityFromRecord(rec, countries))
	}
	if err := networks.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", path, err)
	}
	logger.L().Debug("atlas_mmdb_loaded", "path", path, "cities", len(cities))
	return NewDataset(cities), nil
}

func cityFromRecord(rec geoip2.City, countries map[string]Country) City {
	c := City{
		GeoNameID:   int64(rec.City.GeoNameID),
		Name:        rec.City.Names["en"],
		CountryCode: rec.Country.IsoCode,
		CountryName: rec.Country.Names["en"],
		TimeZone:    rec.Location.TimeZone,
		Continent:   rec.Continent.Code,
		Latitude:    rec.Location.Latitude,
		Longitude:   rec.Location.Longitude,
	}
	if len(rec.Subdivisions) > 0 {
		c.Admin1 = rec.Subdivisions[0].Names["en"]
	}
	if len(rec.Subdivisions) > 1 {
		c.Admin2 = rec.Subdivisions[1].Names["en"]
	}
	if co, ok := countries[c.CountryCode]; ok {
		c.CurrencyCode = co.CurrencyCode
		if c.CountryName == "" {
			c.CountryName = co.Name
		}
	}
	c.Geohash = geohash.Encode(c.Latitude, c.Longitude)
	return c
}
