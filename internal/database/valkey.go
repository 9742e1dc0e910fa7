package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyConfig はValkey接続の設定。
type ValkeyConfig struct {
	Addr     string
	Password string
	DB       int

	// DisableCache はクライアントサイドキャッシュを無効化する。miniredisを使うテストではtrueにする。
	DisableCache bool
	DialTimeout  time.Duration
}

// OpenValkey はValkeyクライアントを生成する。
func OpenValkey(cfg ValkeyConfig) (valkey.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("valkey addr is empty")
	}

	opts := valkey.ClientOption{
		InitAddress:  []string{addr},
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: cfg.DisableCache,
	}
	if cfg.DialTimeout > 0 {
		opts.Dialer.Timeout = cfg.DialTimeout
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	return client, nil
}

// PingValkey はValkeyサーバーとの疎通を確認する。
func PingValkey(ctx context.Context, client valkey.Client) error {
	if client == nil {
		return errors.New("valkey client is nil")
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("failed to ping valkey: %w", err)
	}
	return nil
}
