// 包 atlas：离线反地理索引，按坐标查找最近的城市质心
package atlas

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"geoname/internal/logger"
)

// 默认最大匹配半径（千米），超出视为无匹配
const DefaultMaxDistanceKm = 50.0

// 文档注释：索引句柄
// 背景：每次函数调用都构造一个句柄；句柄只引用进程级共享的只读数据集，构造开销为常数。
// 约束：句柄本身无状态可并发使用；Find 返回城市副本，调用方修改不影响数据集。
type Atlas struct {
	ds          *Dataset
	maxRadiusKm float64
}

// 文档注释：默认数据集来源
// 背景：首次构造句柄时按配置加载并缓存；加载失败不缓存，下一次构造重新尝试并把错误交给调用方。
type source struct {
	mu     sync.RWMutex
	loader func() (*Dataset, error)
	ds     *Dataset
	gen    atomic.Uint64
}

var defaultSource = &source{loader: LoadFromEnv}

// New 构造绑定默认数据集的句柄；数据集加载错误原样返回
func New() (*Atlas, error) {
	ds, err := Default()
	if err != nil {
		return nil, err
	}
	return &Atlas{ds: ds, maxRadiusKm: maxDistanceFromEnv()}, nil
}

// NewWithDataset 使用调用方持有的数据集构造句柄
func NewWithDataset(ds *Dataset, maxRadiusKm float64) *Atlas {
	return &Atlas{ds: ds, maxRadiusKm: maxRadiusKm}
}

// Default 返回默认数据集，必要时触发加载
func Default() (*Dataset, error) {
	s := defaultSource
	s.mu.RLock()
	ds := s.ds
	s.mu.RUnlock()
	if ds != nil {
		return ds, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds != nil {
		return s.ds, nil
	}
	ds, err := s.loader()
	if err != nil {
		logger.L().Error("atlas_load_error", "err", err)
		return nil, err
	}
	if ds == nil {
		ds = NewDataset(nil)
	}
	s.ds = ds
	s.gen.Add(1)
	logger.L().Info("atlas_loaded", "cities", ds.Len())
	return ds, nil
}

// SetDefault 直接替换默认数据集（测试与热加载）
func SetDefault(ds *Dataset) {
	defaultSource.mu.Lock()
	defer defaultSource.mu.Unlock()
	defaultSource.ds = ds
	defaultSource.gen.Add(1)
}

// SetLoader 替换默认加载函数并清空已加载的数据集，下次构造句柄时按新来源加载
func SetLoader(fn func() (*Dataset, error)) {
	if fn == nil {
		fn = LoadFromEnv
	}
	defaultSource.mu.Lock()
	defer defaultSource.mu.Unlock()
	defaultSource.loader = fn
	defaultSource.ds = nil
	defaultSource.gen.Add(1)
}

// Generation 默认数据集版本号：每次加载、替换或更换来源后递增，供结果缓存区分新旧数据集
func Generation() uint64 {
	return defaultSource.gen.Load()
}

// Reload 立即按当前来源重新加载；失败时保留旧数据集
func Reload() error {
	s := defaultSource
	s.mu.RLock()
	fn := s.loader
	s.mu.RUnlock()
	ds, err := fn()
	if err != nil {
		return err
	}
	if ds == nil {
		ds = NewDataset(nil)
	}
	SetDefault(ds)
	logger.L().Info("atlas_reloaded", "cities", ds.Len())
	return nil
}

// Find 查找最大半径内最近的城市；无候选返回 nil
func (a *Atlas) Find(lat, lon float64) *City {
	if a == nil {
		return nil
	}
	return a.FindWithin(lat, lon, a.maxRadiusKm)
}

// FindWithin 按指定半径查找；radiusKm<=0 表示不限距离
func (a *Atlas) FindWithin(lat, lon float64, radiusKm float64) *City {
	if a == nil || a.ds == nil || a.ds.root == nil {
		return nil
	}
	i, d2 := nearest(a.ds.root, toVec(lat, lon))
	if i < 0 {
		return nil
	}
	km := chordToKm(d2)
	if radiusKm > 0 && km > radiusKm {
		logger.L().Debug("atlas_find_out_of_range", "lat", lat, "lon", lon, "km", km, "radius_km", radiusKm)
		return nil
	}
	c := a.ds.cities[i]
	return &c
}

// Len 返回句柄所绑定数据集的城市数量
func (a *Atlas) Len() int {
	if a == nil {
		return 0
	}
	return a.ds.Len()
}

var ErrUnknownSource = errors.New("atlas: unknown source")

// 文档注释：按环境变量加载数据集
// 背景：ATLAS_SOURCE 选择来源：dir（默认，ATLAS_DATA_DIR）或 mmdb（ATLAS_MMDB_PATH）；postgres 来源由入口通过 SetLoader 注入。
func LoadFromEnv() (*Dataset, error) {
	dir := os.Getenv("ATLAS_DATA_DIR")
	if dir == "" {
		dir = filepath.Join("data", "atlas")
	}
	return LoadFromEnvSource(os.Getenv("ATLAS_SOURCE"), dir)
}

// LoadFromEnvSource 按指定来源加载；mmdb 路径仍取 ATLAS_MMDB_PATH，缺省为 dir/GeoLite2-City.mmdb
func LoadFromEnvSource(source, dir string) (*Dataset, error) {
	switch strings.ToLower(source) {
	case "", "dir":
		return LoadDir(dir)
	case "mmdb":
		p := os.Getenv("ATLAS_MMDB_PATH")
		if p == "" {
			p = filepath.Join(dir, "GeoLite2-City.mmdb")
		}
		countries, err := loadCountriesIfPresent(filepath.Join(dir, countryInfoFile))
		if err != nil {
			return nil, err
		}
		return LoadMMDB(p, countries)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
}

func maxDistanceFromEnv() float64 {
	r := DefaultMaxDistanceKm
	if s := os.Getenv("ATLAS_MAX_DISTANCE_KM"); s != "" {
		if f, e := strconv.ParseFloat(s, 64); e == nil && f > 0 {
			r = f
		}
	}
	return r
}
