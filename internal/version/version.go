// Package version はビルドバージョンを保持する。
package version

// Version はビルド時に -ldflags "-X github.com/hitoshi/liveinfo/internal/version.Version=..." で上書きされる。
var Version = "0.0.0-dev"

// DefaultUserAgent は上流APIへのリクエストで使用する既定のUser-Agent。
func DefaultUserAgent() string {
	return "liveinfo_api_middleware/" + Version
}
