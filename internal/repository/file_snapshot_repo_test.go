package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/liveinfo/internal/model"
)

// FileSnapshotRepoはSnapshotRepositoryインターフェースを満たすことを検証
func TestFileSnapshotRepo_ImplementsInterface(t *testing.T) {
	var _ SnapshotRepository = (*FileSnapshotRepo)(nil)
}

func TestFileSnapshotRepo_LoadMissingFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	repo := NewFileSnapshotRepo(map[string]string{"nicolive": filepath.Join(dir, "nicolive.json")})

	snap, err := repo.Load(context.Background(), "nicolive")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if snap != nil {
		t.Errorf("Load() = %+v, want nil", snap)
	}
}

func TestFileSnapshotRepo_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	// 親ディレクトリが存在しなくても作成される
	path := filepath.Join(dir, "data", "ytlive.json")
	repo := NewFileSnapshotRepo(map[string]string{"ytlive": path})

	fetchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	data := []byte(`{"program":{"title":"配信"},"channel":{"name":"ch"}}`)

	if err := repo.Save(context.Background(), "ytlive", &model.Snapshot{Data: data, FetchedAt: fetchedAt}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	// ファイル内容は値のJSONそのもの
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read dump file: %v", err)
	}
	if string(raw) != string(data) {
		t.Errorf("file content = %s, want %s", raw, data)
	}

	snap, err := repo.Load(context.Background(), "ytlive")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if snap == nil {
		t.Fatal("Load() = nil, want snapshot")
	}
	if string(snap.Data) != string(data) {
		t.Errorf("Data = %s, want %s", snap.Data, data)
	}
	if !snap.FetchedAt.Equal(fetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", snap.FetchedAt, fetchedAt)
	}
}

func TestFileSnapshotRepo_SaveOverwritesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nicolive.json")
	repo := NewFileSnapshotRepo(map[string]string{"nicolive": path})
	ctx := context.Background()

	for i, body := range []string{`{"v":1}`, `{"v":2}`} {
		snap := &model.Snapshot{Data: []byte(body), FetchedAt: time.Unix(int64(1700000000+i), 0)}
		if err := repo.Save(ctx, "nicolive", snap); err != nil {
			t.Fatalf("Save #%d returned error: %v", i, err)
		}
	}

	snap, err := repo.Load(ctx, "nicolive")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if string(snap.Data) != `{"v":2}` {
		t.Errorf("Data = %s, want %s", snap.Data, `{"v":2}`)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want only nicolive.json", names)
	}
}

func TestFileSnapshotRepo_UnknownEntity(t *testing.T) {
	repo := NewFileSnapshotRepo(map[string]string{})

	if _, err := repo.Load(context.Background(), "nicolive"); err == nil {
		t.Error("Load: expected error for unconfigured entity")
	}
	err := repo.Save(context.Background(), "nicolive", &model.Snapshot{Data: []byte(`{}`)})
	if err == nil {
		t.Error("Save: expected error for unconfigured entity")
	}
}

func TestFileSnapshotRepo_SaveRejectsEmptyData(t *testing.T) {
	repo := NewFileSnapshotRepo(map[string]string{"nicolive": filepath.Join(t.TempDir(), "n.json")})

	err := repo.Save(context.Background(), "nicolive", &model.Snapshot{})
	if !errors.Is(err, ErrInvalidSnapshot) {
		t.Errorf("err = %v, want ErrInvalidSnapshot", err)
	}
}

func TestFileSnapshotRepo_LoadEmptyFileReturnsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nicolive.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	repo := NewFileSnapshotRepo(map[string]string{"nicolive": path})

	snap, err := repo.Load(context.Background(), "nicolive")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if snap != nil {
		t.Errorf("Load() = %+v, want nil", snap)
	}
}
