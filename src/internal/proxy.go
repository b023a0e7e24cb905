package internal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProxyManager 为 RPC 客户端提供带代理的 HTTP 客户端
type ProxyManager struct {
	proxy *url.URL
}

// NewProxyManager proxyURL 为空表示直连
func NewProxyManager(proxyURL string) (*ProxyManager, error) {
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return &ProxyManager{}, nil
	}
	if err := ValidateProxyURL(proxyURL); err != nil {
		return nil, err
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	return &ProxyManager{proxy: u}, nil
}

// Transport 创建 HTTP Transport，启用代理时所有请求经过代理
func (pm *ProxyManager) Transport() *http.Transport {
	transport := &http.Transport{
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     30 * time.Second,
		MaxIdleConnsPerHost: 16,
	}
	if pm.proxy != nil {
		transport.Proxy = http.ProxyURL(pm.proxy)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}
	return transport
}

// HTTPClient 创建 HTTP 客户端
func (pm *ProxyManager) HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: pm.Transport(),
	}
}

// Enabled 检查代理是否启用
func (pm *ProxyManager) Enabled() bool {
	return pm.proxy != nil
}

// URL 返回代理地址，未启用时为空
func (pm *ProxyManager) URL() string {
	if pm.proxy == nil {
		return ""
	}
	return pm.proxy.String()
}

// ValidateProxyURL 验证代理URL格式
func ValidateProxyURL(proxyURL string) error {
	if strings.TrimSpace(proxyURL) == "" {
		return nil // 空字符串表示不使用代理
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
		return fmt.Errorf("unsupported proxy scheme: %s (supported: http, https, socks5)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy host cannot be empty")
	}
	return nil
}
