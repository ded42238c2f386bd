// 包 udf：标量函数注册表，承载函数名、参数类型、返回类型与可空声明，供宿主按签名查找并调用
package udf

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"geoname/internal/logger"
)

// SQL 类型
type Type string

const (
	Double  Type = "double"
	Varchar Type = "varchar"
)

// 函数签名：名称 + 参数类型 + 返回类型
type Signature struct {
	Name       string `json:"name"`
	ArgTypes   []Type `json:"argTypes"`
	ReturnType Type   `json:"returnType"`
}

func (s Signature) String() string {
	parts := make([]string, len(s.ArgTypes))
	for i, t := range s.ArgTypes {
		parts[i] = string(t)
	}
	return fmt.Sprintf("%s(%s) -> %s", s.Name, strings.Join(parts, ", "), s.ReturnType)
}

// EvalFunc 接收已按签名转换好的参数：double 为 float64，varchar 为 string
type EvalFunc func(ctx context.Context, args []any) (any, error)

// 文档注释：标量函数定义
// 背景：对应宿主插件契约中的一条注册项；Nullable 声明返回值可为 NULL（nil）。
type Function struct {
	Signature
	Description string
	Nullable    bool
	Eval        EvalFunc
}

// 文档注释：函数注册表
// 背景：进程启动时一次性构建，之后只读；按（名称, 参数个数）定位重载。
// 约束：名称大小写不敏感；同名同参数个数重复注册返回错误；读写加锁，可并发调用。
type Registry struct {
	mu sync.RWMutex
	fs map[string]Function
}

func NewRegistry() *Registry {
	return &Registry{fs: make(map[string]Function)}
}

func key(name string, argc int) string {
	return strings.ToLower(name) + "/" + strconv.Itoa(argc)
}

// Register 注册函数
func (r *Registry) Register(f Function) error {
	if f.Name == "" || f.Eval == nil {
		return fmt.Errorf("udf: incomplete function %q", f.Name)
	}
	k := key(f.Name, len(f.ArgTypes))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fs[k]; ok {
		return fmt.Errorf("udf: duplicate signature %s", f.Signature)
	}
	r.fs[k] = f
	logger.L().Info("udf_registered", "signature", f.Signature.String(), "nullable", f.Nullable)
	return nil
}

// Lookup 按名称与参数个数查找
func (r *Registry) Lookup(name string, argc int) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fs[key(name, argc)]
	return f, ok
}

// Functions 返回按签名排序的全部函数
func (r *Registry) Functions() []Function {
	r.mu.RLock()
	out := make([]Function, 0, len(r.fs))
	for _, f := range r.fs {
		out = append(out, f)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return len(out[i].ArgTypes) < len(out[j].ArgTypes)
	})
	return out
}

// 文档注释：按名称调用
// 背景：模拟宿主对非可空参数的调用约定：任一参数为 NULL 时不执行函数直接返回 NULL。
// 约束：double 参数接受各类数值与 json.Number；varchar 只接受字符串；类型不符返回 TYPE_MISMATCH。
func (r *Registry) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	f, ok := r.Lookup(name, len(args))
	if !ok {
		return nil, Errorf(CodeFunctionNotFound, "function %s with %d arguments not registered", name, len(args))
	}
	conv := make([]any, len(args))
	for i, a := range args {
		if a == nil {
			return nil, nil
		}
		v, err := coerce(a, f.ArgTypes[i])
		if err != nil {
			return nil, Errorf(CodeTypeMismatch, "argument %d of %s: %v", i+1, f.Signature, err)
		}
		conv[i] = v
	}
	return f.Eval(ctx, conv)
}

func coerce(v any, t Type) (any, error) {
	switch t {
	case Double:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case json.Number:
			return x.Float64()
		}
		return nil, fmt.Errorf("expected double, got %T", v)
	case Varchar:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected varchar, got %T", v)
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}
