// 包 api：HTTP 接入层，把 geoname 函数与注册表暴露为 JSON 接口
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"geoname/internal/atlas"
	"geoname/internal/logger"
	"geoname/internal/metrics"
	"geoname/internal/udf"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type valueResponse struct {
	Value any `json:"value"`
}

type invokeRequest struct {
	Function string `json:"function"`
	Args     []any  `json:"args"`
}

type functionInfo struct {
	Signature   string     `json:"signature"`
	Name        string     `json:"name"`
	ArgTypes    []udf.Type `json:"argTypes"`
	ReturnType  udf.Type   `json:"returnType"`
	Nullable    bool       `json:"nullable"`
	Description string     `json:"description"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError：udf.Error 按错误码映射状态；其它错误视为内部错误
func writeError(w http.ResponseWriter, err error) {
	var ue *udf.Error
	if errors.As(err, &ue) {
		status := http.StatusBadRequest
		if ue.Code == udf.CodeFunctionNotFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]errorBody{"error": {Code: string(ue.Code), Message: ue.Message}})
		return
	}
	logger.L().Error("geoname_internal_error", "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]errorBody{"error": {Code: "INTERNAL", Message: err.Error()}})
}

func parseCoord(r *http.Request, name string) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, udf.Errorf(udf.CodeInvalidFunctionArgument, "%s is required", name)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, udf.Errorf(udf.CodeInvalidFunctionArgument, "%s must be a double: %q", name, s)
	}
	return f, nil
}

func observe(route string, t0 time.Time) {
	metrics.RequestsTotal.WithLabelValues(route).Inc()
	metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(t0).Milliseconds()))
}

// 文档注释：构建 API 路由
// 背景：/geoname 为两种函数形式的直接入口（带缓存）；/invoke 走注册表通用调用；/functions 列出注册签名。
func BuildRoutes(svc *Service, reg *udf.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /geoname", func(w http.ResponseWriter, r *http.Request) {
		defer observe("geoname", time.Now())
		lat, err := parseCoord(r, "lat")
		if err != nil {
			writeError(w, err)
			return
		}
		lon, err := parseCoord(r, "lon")
		if err != nil {
			writeError(w, err)
			return
		}
		var attr *string
		if q := r.URL.Query(); q.Has("attr") {
			a := q.Get("attr")
			attr = &a
		}
		v, err := svc.Lookup(r.Context(), lat, lon, attr)
		if err != nil {
			writeError(w, err)
			return
		}
		var out valueResponse
		if v != nil {
			out.Value = *v
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		defer observe("invoke", time.Now())
		var req invokeRequest
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			writeError(w, udf.Errorf(udf.CodeInvalidFunctionArgument, "bad request body: %v", err))
			return
		}
		v, err := reg.Invoke(r.Context(), req.Function, req.Args...)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, valueResponse{Value: v})
	})

	mux.HandleFunc("GET /functions", func(w http.ResponseWriter, r *http.Request) {
		fs := reg.Functions()
		out := make([]functionInfo, 0, len(fs))
		for _, f := range fs {
			out = append(out, functionInfo{
				Signature:   f.Signature.String(),
				Name:        f.Name,
				ArgTypes:    f.ArgTypes,
				ReturnType:  f.ReturnType,
				Nullable:    f.Nullable,
				Description: f.Description,
			})
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ds, err := atlas.Default()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "err": err.Error()})
			return
		}
		metrics.DatasetCities.Set(float64(ds.Len()))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "cities": ds.Len(), "built_at": ds.BuiltAt})
	})

	return mux
}
