package atlas

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"
)

// 文档注释：GeoNames 导出文件解析
// 背景：cities*.txt 为 19 列 TSV；countryInfo.txt 提供国家名/大洲/货币；admin1CodesASCII.txt 与 admin2Codes.txt 把行政编码映射为名称。
// 约束：列数不符的行直接跳过；坐标解析失败的行跳过；以 # 开头的行视为注释。
const (
	countryInfoFile = "countryInfo.txt"
	admin1File      = "admin1CodesASCII.txt"
	admin2File      = "admin2Codes.txt"
	cityColumns     = 19
)

// 未完成关联的城市行，保留行政编码供后续查名
type cityRow struct {
	City
	admin1Code string
	admin2Code string
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return sc
}

// parseCities 解析 cities TSV
func parseCities(r io.Reader) ([]cityRow, error) {
	var out []cityRow
	sc := newScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) != cityColumns {
			continue
		}
		id, err := strconv.ParseInt(f[0], 10, 64)
		if err != nil {
			continue
		}
		lat, err1 := strconv.ParseFloat(f[4], 64)
		lon, err2 := strconv.ParseFloat(f[5], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		name := strings.TrimSpace(f[1])
		if name == "" {
			continue
		}
		out = append(out, cityRow{
			City: City{
				GeoNameID:   id,
				Name:        name,
				CountryCode: f[8],
				TimeZone:    f[17],
				Latitude:    lat,
				Longitude:   lon,
				Geohash:     geohash.Encode(lat, lon),
			},
			admin1Code: f[10],
			admin2Code: f[11],
		})
	}
	return out, sc.Err()
}

// parseCountries 解析 countryInfo.txt
func parseCountries(r io.Reader) (map[string]Country, error) {
	out := make(map[string]Country)
	sc := newScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) < 11 || f[0] == "" {
			continue
		}
		out[f[0]] = Country{Code: f[0], Name: f[4], Continent: f[8], CurrencyCode: f[10]}
	}
	return out, sc.Err()
}

// parseAdminCodes 解析 admin1/admin2 编码表：第一列为编码键，第二列为名称
func parseAdminCodes(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	sc := newScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) < 2 || f[0] == "" {
			continue
		}
		out[f[0]] = f[1]
	}
	return out, sc.Err()
}

// joinCities 关联国家与行政区名称
func joinCities(rows []cityRow, countries map[string]Country, admin1, admin2 map[string]string) []City {
	out := make([]City, 0, len(rows))
	for _, r := range rows {
		c := r.City
		if co, ok := countries[c.CountryCode]; ok {
			c.CountryName = co.Name
			c.Continent = co.Continent
			c.CurrencyCode = co.CurrencyCode
		}
		c.Admin1 = lookupAdmin(admin1, c.CountryCode+"."+r.admin1Code, r.admin1Code)
		c.Admin2 = lookupAdmin(admin2, c.CountryCode+"."+r.admin1Code+"."+r.admin2Code, r.admin2Code)
		out = append(out, c)
	}
	return out
}

func lookupAdmin(m map[string]string, key, code string) string {
	if code == "" {
		return ""
	}
	if v, ok := m[key]; ok {
		return v
	}
	return code
}

// readCitiesFile 支持纯文本与 zip（取包内所有 .txt）
func readCitiesFile(path string) ([]cityRow, error) {
	if strings.HasSuffix(strings.ToLower(path), ".zip") {
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer zr.Close()
		var out []cityRow
		for _, zf := range zr.File {
			if !strings.HasSuffix(strings.ToLower(zf.Name), ".txt") {
				continue
			}
			rc, err := zf.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s!%s: %w", path, zf.Name, err)
			}
			rows, err := parseCities(rc)
			_ = rc.Close()
			if err != nil {
				return nil, fmt.Errorf("parse %s!%s: %w", path, zf.Name, err)
			}
			out = append(out, rows...)
		}
		return out, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	rows, err := parseCities(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rows, nil
}

func loadCountriesIfPresent(path string) (map[string]Country, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]Country{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	m, err := parseCountries(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

func loadAdminIfPresent(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	m, err := parseAdminCodes(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}
