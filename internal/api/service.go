package api

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"geoname/internal/atlas"
	"geoname/internal/geoname"
	"geoname/internal/logger"
	"geoname/internal/metrics"
)

// 文档注释：带结果缓存的 geoname 查询服务
// 背景：进程内缓存（go-cache）在前，Redis 在后；键由默认数据集版本号与原始坐标文本组成，数据集重新加载后旧条目不再命中。
// 约束：只缓存成功结果（含无匹配）；错误不缓存；Redis 读写失败只记录调试日志，不影响主流程。
type Service struct {
	fns   *geoname.Functions
	local *cache.Cache
	rc    *redis.Client
	ttl   time.Duration
}

type cachedResult struct {
	Value *string `json:"v"`
}

func NewService(fns *geoname.Functions, rc *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{fns: fns, local: cache.New(ttl, 2*ttl), rc: rc, ttl: ttl}
}

func cacheKey(gen uint64, lat, lon float64, attr *string) string {
	k := "geoname:" + strconv.FormatUint(gen, 10) + ":" + strconv.FormatFloat(lat, 'g', -1, 64) + ":" + strconv.FormatFloat(lon, 'g', -1, 64)
	if attr != nil {
		k += ":a:" + *attr
	}
	return k
}

// Lookup：attr 为 nil 时返回完整记录文本，否则返回对应属性
func (s *Service) Lookup(ctx context.Context, lat, lon float64, attr *string) (*string, error) {
	key := cacheKey(atlas.Generation(), lat, lon, attr)
	if v, ok := s.local.Get(key); ok {
		metrics.CacheHitsTotal.WithLabelValues("local").Inc()
		return v.(cachedResult).Value, nil
	}
	if s.rc != nil {
		if b, err := s.rc.Get(ctx, key).Bytes(); err == nil {
			var cr cachedResult
			if json.Unmarshal(b, &cr) == nil {
				metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
				s.local.Set(key, cr, cache.DefaultExpiration)
				return cr.Value, nil
			}
		} else if err != redis.Nil {
			logger.L().Debug("redis_get_error", "key", key, "err", err)
		}
	}
	metrics.CacheMissesTotal.Inc()
	var (
		v   *string
		err error
	)
	if attr == nil {
		v, err = s.fns.Geoname(lat, lon)
	} else {
		v, err = s.fns.GeonameAttribute(lat, lon, *attr)
	}
	if err != nil {
		return nil, err
	}
	cr := cachedResult{Value: v}
	s.local.Set(key, cr, cache.DefaultExpiration)
	if s.rc != nil {
		b, _ := json.Marshal(cr)
		if err := s.rc.Set(ctx, key, b, s.ttl).Err(); err != nil {
			logger.L().Debug("redis_set_error", "key", key, "err", err)
		}
	}
	return v, nil
}
