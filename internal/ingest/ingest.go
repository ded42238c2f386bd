// 包 ingest：GeoNames 导出文件下载与数据集落地（PostgreSQL / JSON 快照），作为离线数据通道
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"geoname/internal/atlas"
	"geoname/internal/logger"
	"geoname/internal/store"
)

const DefaultBaseURL = "https://download.geonames.org/export/dump/"

// 默认下载的文件：城市（人口 ≥1000）与国家、行政区字典
var DefaultFiles = []string{"cities1000.zip", "countryInfo.txt", "admin1CodesASCII.txt", "admin2Codes.txt"}

// 文档注释：下载 GeoNames 导出文件到数据目录
// 背景：逐个下载到临时文件，完成后改名覆盖；任一失败立即返回，已完成的文件保留。
// 约束：非 200 状态视为失败；不做重试，交由调度层下次执行。
func Download(ctx context.Context, client *http.Client, baseURL, dir string, files []string) error {
	if client == nil {
		client = http.DefaultClient
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, name := range files {
		if err := downloadFile(ctx, client, baseURL+name, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("download %s: %w", name, err)
		}
		logger.L().Info("ingest_downloaded", "file", name)
	}
	return nil
}

var errBadStatus = errors.New("bad status")

func downloadFile(ctx context.Context, client *http.Client, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", errBadStatus, resp.StatusCode)
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ToPostgres：数据集写入城市表
func ToPostgres(ctx context.Context, st *store.Store, ds *atlas.Dataset) (int, error) {
	logger.L().Info("ingest_postgres_begin", "cities", ds.Len())
	n, err := st.UpsertCities(ctx, ds.Cities())
	if err != nil {
		return n, err
	}
	logger.L().Info("ingest_postgres_done", "cities", n)
	return n, nil
}

// ToSnapshot：数据集写为数据目录下的 cities.json
func ToSnapshot(dir string, ds *atlas.Dataset) (string, error) {
	p := filepath.Join(dir, atlas.SnapshotFile)
	if err := atlas.WriteSnapshot(p, ds); err != nil {
		return "", err
	}
	logger.L().Info("ingest_snapshot_done", "path", p, "cities", ds.Len())
	return p, nil
}
