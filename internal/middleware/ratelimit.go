package middleware

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"geoname/internal/logger"
)

// 文档注释：入口限流中间件
// 背景：RATE_LIMIT_ENABLED=true 时按 RATE_LIMIT_QPS（默认 200）限速，突发容量等于 QPS。
// 约束：不排队，超限直接返回 429；/metrics 与 /healthz 不受限。
func Wrap(next http.Handler) http.Handler {
	if os.Getenv("RATE_LIMIT_ENABLED") != "true" {
		return next
	}
	qps := 200
	if s := os.Getenv("RATE_LIMIT_QPS"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			qps = n
		}
	}
	logger.L().Info("rate_limit_enabled", "qps", qps)
	return Limit(rate.NewLimiter(rate.Limit(qps), qps), next)
}

// Limit：使用给定限流器包装处理器
func Limit(lim *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if !lim.Allow() {
			logger.L().Debug("rate_limited", "path", r.URL.Path, "ip", r.RemoteAddr)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func exempt(p string) bool {
	return strings.HasSuffix(p, "/metrics") || strings.HasSuffix(p, "/healthz")
}
