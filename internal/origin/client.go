package origin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"edge-cdn/internal/logger"
	"edge-cdn/internal/metrics"
)

const DefaultPort = "8080"

// 文档注释：源站响应
// 约束：Body 为原始（未压缩）内容；非 2xx 时 Body 仍保留，供调用方透传错误页。
type Response struct {
	Status int
	Body   []byte
}

// OK：2xx 视为成功，其余一律视为不可用
func (r Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Fetcher：分配器与查找路径依赖的最小取数接口
type Fetcher interface {
	Fetch(ctx context.Context, key string) (Response, error)
}

// 文档注释：源站会话
// 背景：一次构建/补全过程复用同一个连接池；Close 释放空闲连接，结束会话。
type Client struct {
	base string
	hc   *http.Client
}

// 文档注释：创建源站会话
// 参数：host 为源站主机名，port 为空时使用 8080；timeout<=0 时不设超时。
func NewClient(host, port string, timeout time.Duration) *Client {
	if port == "" {
		port = DefaultPort
	}
	return NewClientBase("http://"+host+":"+port, timeout)
}

// NewClientBase：以完整基础地址创建会话（测试中指向 httptest 服务）
func NewClientBase(base string, timeout time.Duration) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Transport: tr, Timeout: timeout},
	}
}

func (c *Client) Base() string { return c.base }

// 文档注释：GET <base>/<key>
// 返回：状态码与完整响应体；仅网络层失败返回 error，非 2xx 由调用方按“不可用”处理。
func (c *Client) Fetch(ctx context.Context, key string) (Response, error) {
	u := c.base + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Response{}, err
	}
	t0 := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		metrics.OriginRequestsTotal.WithLabelValues("error").Inc()
		logger.L().Debug("origin_http_error", "key", key, "err", err)
		return Response{}, fmt.Errorf("origin get %s: %w", key, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.OriginRequestsTotal.WithLabelValues("error").Inc()
		return Response{}, fmt.Errorf("origin read %s: %w", key, err)
	}
	dur := time.Since(t0).Milliseconds()
	metrics.OriginDurationMs.Observe(float64(dur))
	metrics.OriginRequestsTotal.WithLabelValues(metrics.StatusClass(resp.StatusCode)).Inc()
	logger.L().Debug("origin_resp", "key", key, "status", resp.StatusCode, "bytes", len(body), "duration_ms", dur)
	return Response{Status: resp.StatusCode, Body: body}, nil
}

// Close：结束会话，释放空闲连接
func (c *Client) Close() { c.hc.CloseIdleConnections() }

// 文档注释：解析 host[:port]
// 背景：命令行以单个参数传入源站地址；未带端口时回退 8080。按最后一个冒号切分。
func ParseAddr(s string) (host, port string) {
	i := strings.LastIndex(s, ":")
	if i == -1 {
		return s, DefaultPort
	}
	host, port = s[:i], s[i+1:]
	if port == "" {
		port = DefaultPort
	}
	return host, port
}
