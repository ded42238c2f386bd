// 包 geoname：geoname(lat, lon[, attribute]) 标量函数，实现查询、投影与注册
package geoname

import (
	"context"
	"time"

	"geoname/internal/atlas"
	"geoname/internal/logger"
	"geoname/internal/metrics"
	"geoname/internal/udf"
)

const FunctionName = "geoname"

// Finder 最近城市查找；无匹配返回 nil
type Finder interface {
	Find(lat, lon float64) *atlas.City
}

// IndexFunc 构造索引句柄，每次调用都会执行一次
type IndexFunc func() (Finder, error)

// DefaultIndex 绑定进程级默认数据集
func DefaultIndex() (Finder, error) {
	a, err := atlas.New()
	if err != nil {
		return nil, err
	}
	return a, nil
}

// 文档注释：函数实现
// 背景：每次调用构造索引句柄并查询最近城市；无匹配返回 nil（对应 SQL NULL），不视为错误。
// 约束：句柄构造/查询产生的错误原样返回；属性非法只在找到城市后才校验。
type Functions struct {
	newIndex IndexFunc
}

func New(newIndex IndexFunc) *Functions {
	if newIndex == nil {
		newIndex = DefaultIndex
	}
	return &Functions{newIndex: newIndex}
}

func (f *Functions) find(lat, lon float64) (*atlas.City, error) {
	t0 := time.Now()
	idx, err := f.newIndex()
	if err != nil {
		return nil, err
	}
	c := idx.Find(lat, lon)
	metrics.LookupDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	if c == nil {
		metrics.EmptyResultsTotal.Inc()
		logger.L().Debug("geoname_miss", "lat", lat, "lon", lon)
		return nil, nil
	}
	logger.L().Debug("geoname_hit", "lat", lat, "lon", lon, "id", c.GeoNameID, "city", c.Name)
	return c, nil
}

// Geoname 返回最近城市的完整文本表示
func (f *Functions) Geoname(lat, lon float64) (*string, error) {
	c, err := f.find(lat, lon)
	if err != nil || c == nil {
		return nil, err
	}
	s := c.String()
	return &s, nil
}

// GeonameAttribute 返回最近城市的指定属性
func (f *Functions) GeonameAttribute(lat, lon float64, alias string) (*string, error) {
	c, err := f.find(lat, lon)
	if err != nil || c == nil {
		return nil, err
	}
	s, err := ResolveAlias(*c, alias)
	if err != nil {
		metrics.InvalidAttributeTotal.Inc()
		return nil, err
	}
	return &s, nil
}

// 文档注释：向注册表登记两个重载
// 背景：geoname(double, double) 与 geoname(double, double, varchar)，返回 varchar 且可空。
func (f *Functions) Register(reg *udf.Registry) error {
	if err := reg.Register(udf.Function{
		Signature: udf.Signature{
			Name:       FunctionName,
			ArgTypes:   []udf.Type{udf.Double, udf.Double},
			ReturnType: udf.Varchar,
		},
		Description: "Returns nearest geoname from its centroid to a given latitude and longitude",
		Nullable:    true,
		Eval: func(ctx context.Context, args []any) (any, error) {
			return nullable(f.Geoname(args[0].(float64), args[1].(float64)))
		},
	}); err != nil {
		return err
	}
	return reg.Register(udf.Function{
		Signature: udf.Signature{
			Name:       FunctionName,
			ArgTypes:   []udf.Type{udf.Double, udf.Double, udf.Varchar},
			ReturnType: udf.Varchar,
		},
		Description: "Returns nearest geoname attribute from its centroid to a given latitude and longitude. Attribute can be one of: " + AttributesDesc,
		Nullable:    true,
		Eval: func(ctx context.Context, args []any) (any, error) {
			return nullable(f.GeonameAttribute(args[0].(float64), args[1].(float64), args[2].(string)))
		},
	})
}

// 避免把 (*string)(nil) 装进非空接口
func nullable(s *string, err error) (any, error) {
	if err != nil || s == nil {
		return nil, err
	}
	return *s, nil
}
