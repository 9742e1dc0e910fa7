// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrResponseTooLarge は上流レスポンスが最大サイズを超えたことを表す。
var ErrResponseTooLarge = errors.New("response body too large")

// SSRFGuardService はSSRF防止機能のインターフェースを定義する。
// 上流プラットフォームへのすべてのリクエストで使用される。
type SSRFGuardService interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// safeurlライブラリにより、プライベートIP、ループバック、リンクローカル、
	// メタデータIPへのリクエストが自動的にブロックされる。
	// レスポンスボディはmaxResponseSizeバイトを超えるとErrResponseTooLargeで読み取りが失敗する。
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client

	// ValidateURL はURLの安全性を事前に検証する。
	ValidateURL(rawURL string) error
}

// blockedPrefixes は直接IP指定のURLで拒否するアドレス範囲。
// 名前解決後のアドレスはsafeurl側のDialerで検証される。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),     // RFC 1918
	netip.MustParsePrefix("172.16.0.0/12"),  // RFC 1918
	netip.MustParsePrefix("192.168.0.0/16"), // RFC 1918
	netip.MustParsePrefix("127.0.0.0/8"),    // ループバック
	netip.MustParsePrefix("169.254.0.0/16"), // リンクローカル（メタデータIPを含む）
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// ssrfGuard はSSRFGuardServiceの実装。
type ssrfGuard struct {
	allowPrivate bool
}

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
// allowPrivateがtrueの場合はアドレス検証を行わない（ローカル検証用）。
func NewSSRFGuard(allowPrivate bool) *ssrfGuard {
	return &ssrfGuard{allowPrivate: allowPrivate}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// DNS再バインディング攻撃にも対応している。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	if g.allowPrivate {
		return &http.Client{
			Timeout: timeout,
			Transport: &guardedTransport{
				base:    http.DefaultTransport,
				maxSize: maxResponseSize,
			},
		}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	client := safeurl.Client(config).Client
	client.Transport = &guardedTransport{
		base:     client.Transport,
		maxSize:  maxResponseSize,
		validate: g.ValidateURL,
	}
	return client
}

// ValidateURL はスキームとホストを静的に検証する。名前解決は行わない。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if g.allowPrivate {
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range blockedPrefixes {
			if p.Contains(addr) {
				return fmt.Errorf("blocked IP address: %s", addr)
			}
		}
	}
	return nil
}

// guardedTransport は送信前のURL検証とレスポンスサイズ制限を行うRoundTripper。
type guardedTransport struct {
	base     http.RoundTripper
	maxSize  int64
	validate func(rawURL string) error
}

// RoundTrip はhttp.RoundTripperインターフェースを実装する。
func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.validate != nil {
		if err := t.validate(req.URL.String()); err != nil {
			return nil, err
		}
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if t.maxSize > 0 {
		if resp.ContentLength > t.maxSize {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: content-length %d > %d", ErrResponseTooLarge, resp.ContentLength, t.maxSize)
		}
		resp.Body = &limitedBody{rc: resp.Body, remaining: t.maxSize}
	}
	return resp, nil
}

// limitedBody は上限を超えて読み取ろうとした時点でErrResponseTooLargeを返すボディ。
type limitedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		// 上限ちょうどで終わっているかを1バイト読んで確認する
		var one [1]byte
		n, err := b.rc.Read(one[:])
		if n > 0 {
			return 0, ErrResponseTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func (b *limitedBody) Close() error {
	return b.rc.Close()
}
