package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hitoshi/liveinfo/internal/model"
)

// FileSnapshotRepo はエンティティごとに1つのJSONファイルを使用するリポジトリ。
// ファイル内容は値のJSONそのもので、取得時刻はファイルの更新時刻として保持する。
type FileSnapshotRepo struct {
	paths map[string]string
}

// NewFileSnapshotRepo はFileSnapshotRepoを生成する。pathsはエンティティIDからファイルパスへの対応。
func NewFileSnapshotRepo(paths map[string]string) *FileSnapshotRepo {
	cp := make(map[string]string, len(paths))
	for k, v := range paths {
		cp[k] = v
	}
	return &FileSnapshotRepo{paths: cp}
}

func (r *FileSnapshotRepo) pathFor(entityID string) (string, error) {
	p, ok := r.paths[entityID]
	if !ok || p == "" {
		return "", fmt.Errorf("ダンプファイルのパスが設定されていません: %s", entityID)
	}
	return p, nil
}

// Load はダンプファイルを読み込む。ファイルが存在しない場合はnilを返す。
func (r *FileSnapshotRepo) Load(_ context.Context, entityID string) (*model.Snapshot, error) {
	path, err := r.pathFor(entityID)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ダンプファイルの状態取得に失敗しました: %w", err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ダンプファイルの読み込みに失敗しました: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	return &model.Snapshot{Data: data, FetchedAt: info.ModTime()}, nil
}

// Save は一時ファイルへ書き込んでからリネームし、ダンプファイルを原子的に置き換える。
func (r *FileSnapshotRepo) Save(_ context.Context, entityID string, snap *model.Snapshot) error {
	if err := validateSnapshot(entityID, snap); err != nil {
		return err
	}
	path, err := r.pathFor(entityID)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ダンプディレクトリの作成に失敗しました: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(snap.Data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("一時ファイルへの書き込みに失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("一時ファイルのクローズに失敗しました: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("一時ファイルの権限設定に失敗しました: %w", err)
	}

	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	if err := os.Chtimes(tmpPath, fetchedAt, fetchedAt); err != nil {
		cleanup()
		return fmt.Errorf("取得時刻の記録に失敗しました: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("ダンプファイルの置き換えに失敗しました: %w", err)
	}

	return nil
}
