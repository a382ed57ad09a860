package account

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PictureStore はプロフィール画像の保存先。
type PictureStore interface {
	// Save は name で画像を保存する。name はパス区切りを含まない。
	Save(ctx context.Context, name string, r io.Reader) error
}

// DiskStore はローカルディレクトリに画像を保存するPictureStore。
type DiskStore struct {
	dir string
}

// NewDiskStore はDiskStoreを生成する。ディレクトリが無ければ作成する。
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("アップロードディレクトリの作成に失敗しました: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Save は一時ファイルへ書き込んでからリネームする。途中で失敗した場合はファイルを残さない。
func (s *DiskStore) Save(ctx context.Context, name string, r io.Reader) error {
	if name != filepath.Base(name) {
		return fmt.Errorf("不正なファイル名です: %s", name)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("画像の書き込みに失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("画像の書き込みに失敗しました: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("画像の保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PictureStore = (*DiskStore)(nil)
