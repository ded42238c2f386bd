package atlas

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"geoname/internal/logger"
)

// 快照文件名：由导入工具写出，存在时优先于 GeoNames 原始文件
const SnapshotFile = "cities.json"

// 文档注释：从数据目录加载数据集
// 背景：优先读取 cities.json 快照；否则扫描 GeoNames 导出（cities*.txt / cities*.zip）并并行解析国家与行政区字典后关联。
// 约束：目录不存在时返回空数据集（查询一律无匹配）；文件存在但损坏时返回带路径的错误。
func LoadDir(dir string) (*Dataset, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		logger.L().Info("atlas_dir_missing", "dir", dir)
		return NewDataset(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	snap := filepath.Join(dir, SnapshotFile)
	if _, err := os.Stat(snap); err == nil {
		return LoadSnapshot(snap)
	}
	return loadGeoNamesEntries(dir, entries)
}

// LoadGeoNamesDir 忽略快照，只解析目录中的 GeoNames 原始导出（刷新任务使用）
func LoadGeoNamesDir(dir string) (*Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	return loadGeoNamesEntries(dir, entries)
}

func loadGeoNamesEntries(dir string, entries []os.DirEntry) (*Dataset, error) {
	var cityFiles []string
	for _, ent := range entries {
		name := strings.ToLower(ent.Name())
		if ent.IsDir() || !strings.HasPrefix(name, "cities") {
			continue
		}
		if strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".zip") {
			cityFiles = append(cityFiles, filepath.Join(dir, ent.Name()))
		}
	}
	sort.Strings(cityFiles)
	logger.L().Debug("atlas_dir_scan", "dir", dir, "city_files", len(cityFiles))
	return LoadGeoNames(cityFiles, filepath.Join(dir, countryInfoFile), filepath.Join(dir, admin1File), filepath.Join(dir, admin2File))
}

// LoadGeoNames 并行解析给定文件并关联；字典文件缺失时对应字段留空或回退为编码
func LoadGeoNames(cityFiles []string, countryPath, admin1Path, admin2Path string) (*Dataset, error) {
	var (
		countries map[string]Country
		admin1    map[string]string
		admin2    map[string]string
	)
	rows := make([][]cityRow, len(cityFiles))
	var g errgroup.Group
	g.Go(func() (err error) {
		countries, err = loadCountriesIfPresent(countryPath)
		return err
	})
	g.Go(func() (err error) {
		admin1, err = loadAdminIfPresent(admin1Path)
		return err
	})
	g.Go(func() (err error) {
		admin2, err = loadAdminIfPresent(admin2Path)
		return err
	})
	for i, p := range cityFiles {
		g.Go(func() (err error) {
			rows[i], err = readCitiesFile(p)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	var all []cityRow
	for _, rs := range rows {
		for _, r := range rs {
			if _, dup := seen[r.GeoNameID]; dup {
				continue
			}
			seen[r.GeoNameID] = struct{}{}
			all = append(all, r)
		}
	}
	cities := joinCities(all, countries, admin1, admin2)
	logger.L().Debug("atlas_geonames_loaded", "cities", len(cities), "countries", len(countries), "admin1", len(admin1), "admin2", len(admin2))
	return NewDataset(cities), nil
}

// LoadSnapshot 读取 JSON 快照（[]City）
func LoadSnapshot(path string) (*Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var cities []City
	if err := json.Unmarshal(b, &cities); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return NewDataset(cities), nil
}

// WriteSnapshot 写出 JSON 快照；先写临时文件再改名，避免读到半截文件
func WriteSnapshot(path string, ds *Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(ds.Cities())
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
