package geoname

import (
	"fmt"
	"strconv"
	"strings"

	"geoname/internal/atlas"
	"geoname/internal/udf"
)

// 可投影的城市属性
type Attribute int

const (
	AttrCountry Attribute = iota
	AttrCity
	AttrTimeZone
	AttrAdmin1
	AttrAdmin2
	AttrID
	AttrLatLon
	AttrCountryName
	AttrCurrency
	AttrContinent
)

// 合法属性说明，出现在错误信息与函数描述中，顺序固定
const AttributesDesc = "countrycode | city | timezone | id | admin1 | admin2 | countryname | latlon | currency | continent"

var aliases = map[string]Attribute{
	"country":       AttrCountry,
	"countrycode":   AttrCountry,
	"country_code":  AttrCountry,
	"city":          AttrCity,
	"cityname":      AttrCity,
	"city_name":     AttrCity,
	"timezone":      AttrTimeZone,
	"admin1":        AttrAdmin1,
	"admin2":        AttrAdmin2,
	"id":            AttrID,
	"latlon":        AttrLatLon,
	"countryname":   AttrCountryName,
	"country_name":  AttrCountryName,
	"currency":      AttrCurrency,
	"currencycode":  AttrCurrency,
	"currency_code": AttrCurrency,
	"continent":     AttrContinent,
}

// 文档注释：解析属性别名
// 背景：别名先转小写再精确匹配；不去除首尾空白、不做前缀匹配。
// 返回：未知别名返回 INVALID_FUNCTION_ARGUMENT，信息列出全部合法属性。
func ParseAttribute(alias string) (Attribute, error) {
	if a, ok := aliases[strings.ToLower(alias)]; ok {
		return a, nil
	}
	return 0, udf.Errorf(udf.CodeInvalidFunctionArgument, "Valid attributes are: %s", AttributesDesc)
}

// Resolve 投影城市的单个字段为字符串
func Resolve(c atlas.City, a Attribute) string {
	switch a {
	case AttrCountry:
		return c.CountryCode
	case AttrCity:
		return c.Name
	case AttrTimeZone:
		return c.TimeZone
	case AttrAdmin1:
		return c.Admin1
	case AttrAdmin2:
		return c.Admin2
	case AttrID:
		return strconv.FormatInt(c.GeoNameID, 10)
	case AttrLatLon:
		return fmt.Sprintf("%f,%f", c.Latitude, c.Longitude)
	case AttrCountryName:
		return c.CountryName
	case AttrCurrency:
		return c.CurrencyCode
	case AttrContinent:
		return c.Continent
	}
	panic(fmt.Sprintf("geoname: unhandled attribute %d", int(a)))
}

// ResolveAlias 解析别名后投影
func ResolveAlias(c atlas.City, alias string) (string, error) {
	a, err := ParseAttribute(alias)
	if err != nil {
		return "", err
	}
	return Resolve(c, a), nil
}
