// internal/pkg/httpclient/client.go
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"atlas/internal/pkg/apperr"
)

// Resolver 把逻辑服务名解析成基础 URL。
// Nacos 客户端和静态配置表都实现了这个接口。
type Resolver interface {
	Resolve(serviceName string) (string, error)
}

// StaticResolver 用配置文件中的固定地址表做服务寻址。
type StaticResolver map[string]string

func (r StaticResolver) Resolve(serviceName string) (string, error) {
	if base, ok := r[serviceName]; ok && base != "" {
		return base, nil
	}
	return "", fmt.Errorf("no static address configured for service %s", serviceName)
}

// Client 是一个可追踪的、可注入的内部服务 HTTP 客户端。
// 每次调用都有有界超时；超时或连接失败一律映射为 Unavailable，
// 调用方绝不能把超时当作"资源不存在"。
type Client struct {
	tracer     trace.Tracer
	resolver   Resolver
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient 创建一个新的客户端实例。timeout <= 0 时使用 3s 默认值。
func NewClient(tracer trace.Tracer, resolver Resolver, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		tracer:   tracer,
		resolver: resolver,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		timeout: timeout,
	}
}

// GetJSON 对目标服务发起 GET 请求并把响应体解码到 out（可为 nil）。
func (c *Client) GetJSON(ctx context.Context, serviceName, path string, headers http.Header, out interface{}) error {
	return c.do(ctx, http.MethodGet, serviceName, path, headers, nil, out)
}

// PostJSON 对目标服务发起 JSON POST 请求并把响应体解码到 out（可为 nil）。
func (c *Client) PostJSON(ctx context.Context, serviceName, path string, body interface{}, out interface{}) error {
	return c.do(ctx, http.MethodPost, serviceName, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, serviceName, path string, headers http.Header, body, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, "call-"+serviceName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	base, err := c.resolver.Resolve(serviceName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return apperr.Unavailable(fmt.Sprintf("%s unavailable", serviceName), err)
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			span.RecordError(err)
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, base+path, reqBody)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	span.SetAttributes(
		attribute.String("http.url", base+path),
		attribute.String("http.method", method),
		attribute.String("peer.service", serviceName),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return apperr.Unavailable(fmt.Sprintf("%s unavailable", serviceName), err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		span.RecordError(err)
		return apperr.Unavailable(fmt.Sprintf("%s unavailable", serviceName), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := decodeMessage(raw)
		if message == "" {
			message = fmt.Sprintf("%s returned status %d", serviceName, resp.StatusCode)
		}
		appErr := apperr.FromStatus(resp.StatusCode, message)
		span.SetStatus(codes.Error, appErr.Message)
		return appErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			span.RecordError(err)
			return apperr.Unavailable(fmt.Sprintf("invalid response from %s", serviceName), err)
		}
	}
	return nil
}

func decodeMessage(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.Message
}
