package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileName   = "liveinfo.log"
	logMaxSizeMB  = 50
	logMaxBackups = 7
	logMaxAgeDays = 14
)

// Options はロガーの出力設定。
type Options struct {
	// Format は "json"（slogのJSON）または "text"（tintによるコンソール向け表示）。
	Format string
	// Level は debug, info, warn, error のいずれか。不明な値はinfoとして扱う。
	Level string
	// Dir が指定された場合はローテーションするログファイルにも出力する。
	Dir string
	// Writer は標準の出力先。nilの場合はos.Stdout。
	Writer io.Writer
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerが指定された場合はそのwriterに出力する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w)
	slog.SetDefault(logger)
}

// New はOptionsに従ってslog.Loggerを生成する。
// 戻り値のio.Closerはログファイルを閉じるためのもので、ファイル出力がない場合もnilではない。
func New(opts Options) (*slog.Logger, io.Closer, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	level := ParseLevel(opts.Level)

	var closer io.Closer = nopCloser{}
	fileOutput := false
	if dir := strings.TrimSpace(opts.Dir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("ログディレクトリの作成に失敗しました: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(dir, logFileName),
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(w, lj)
		closer = lj
		fileOutput = true
	}

	var handler slog.Handler
	switch opts.Format {
	case "text":
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
			NoColor:    fileOutput,
		})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler), closer, nil
}

// ParseLevel はログレベル名をslog.Levelに変換する。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
