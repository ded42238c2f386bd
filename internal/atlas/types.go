package atlas

import (
	"fmt"
	"strings"
	"time"
)

// 文档注释：城市记录（质心 + 行政与国家属性）
// 背景：反地理查询的唯一返回实体；由数据集加载阶段构造，查询期只读，调用方拿到的是副本。
// 约束：字段语义对齐 GeoNames；Admin1/Admin2 为名称（缺少名称表时回退为编码）；Geohash 在加载时计算。
type City struct {
	GeoNameID    int64   `json:"geonameId"`
	Name         string  `json:"name"`
	CountryCode  string  `json:"countryCode"`
	CountryName  string  `json:"countryName"`
	Admin1       string  `json:"admin1"`
	Admin2       string  `json:"admin2"`
	TimeZone     string  `json:"timeZone"`
	Continent    string  `json:"continent"`
	CurrencyCode string  `json:"currencyCode"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Geohash      string  `json:"geohash,omitempty"`
}

// String 返回完整的单行文本表示，geoname(lat, lon) 直接输出该值
func (c City) String() string {
	var b strings.Builder
	b.WriteString("City{")
	fmt.Fprintf(&b, "geoNameId=%d", c.GeoNameID)
	fmt.Fprintf(&b, ", name=%s", c.Name)
	fmt.Fprintf(&b, ", countryCode=%s", c.CountryCode)
	fmt.Fprintf(&b, ", countryName=%s", c.CountryName)
	fmt.Fprintf(&b, ", admin1=%s", c.Admin1)
	fmt.Fprintf(&b, ", admin2=%s", c.Admin2)
	fmt.Fprintf(&b, ", timeZone=%s", c.TimeZone)
	fmt.Fprintf(&b, ", continent=%s", c.Continent)
	fmt.Fprintf(&b, ", currencyCode=%s", c.CurrencyCode)
	fmt.Fprintf(&b, ", latitude=%f, longitude=%f}", c.Latitude, c.Longitude)
	return b.String()
}

// 国家字典项（countryInfo.txt）
type Country struct {
	Code         string
	Name         string
	Continent    string
	CurrencyCode string
}

// 文档注释：只读数据集快照
// 背景：城市切片与 KD-Tree 一次构建、多请求共享；任何句柄都只持有引用。
// 约束：构建后不再修改；重新加载时整体替换为新快照。
type Dataset struct {
	cities  []City
	root    *kdNode
	BuiltAt time.Time
}

// NewDataset 拷贝输入后构建索引，调用方后续修改入参不影响快照
func NewDataset(cities []City) *Dataset {
	cs := append([]City(nil), cities...)
	idx := make([]int, len(cs))
	for i := range idx {
		idx[i] = i
	}
	ds := &Dataset{cities: cs, BuiltAt: time.Now()}
	ds.root = buildKD(cs, idx, 0)
	return ds
}

// Len 返回城市数量
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.cities)
}

// Cities 返回副本，供导出与入库
func (d *Dataset) Cities() []City {
	if d == nil {
		return nil
	}
	return append([]City(nil), d.cities...)
}
