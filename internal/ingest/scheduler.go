package ingest

import (
	"context"
	"time"

	"geoname/internal/logger"
	"geoname/internal/metrics"
)

// nextWeekdayAt：计算下一次指定星期、整点的时间点（严格晚于 now）
func nextWeekdayAt(now time.Time, wd time.Weekday, hour int) time.Time {
	for i := 0; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		if d.Weekday() != wd {
			continue
		}
		t := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, now.Location())
		if t.After(now) {
			return t
		}
	}
	d := now.AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, now.Location())
}

// 文档注释：每周定时刷新
// 背景：GeoNames 每日更新导出，数据集按周刷新即可；job 负责下载、落库与重新加载。
// 约束：运行在后台协程，ctx 取消即退出；job 失败只记录日志与指标，下周继续。
func StartWeekly(ctx context.Context, loc *time.Location, wd time.Weekday, hour int, job func(context.Context) error) {
	l := logger.L()
	if loc == nil {
		loc = time.UTC
	}
	next := nextWeekdayAt(time.Now().In(loc), wd, hour)
	l.Info("refresh_scheduled", "next", next)
	go func() {
		for {
			t := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			l.Info("refresh_start", "at", next)
			if err := job(ctx); err != nil {
				l.Error("refresh_error", "err", err)
				metrics.RefreshTotal.WithLabelValues("fail").Inc()
			} else {
				l.Info("refresh_done")
				metrics.RefreshTotal.WithLabelValues("ok").Inc()
			}
			next = nextWeekdayAt(time.Now().In(loc), wd, hour)
		}
	}()
}
