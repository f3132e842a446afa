package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		return nil, err
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (ls *LocalStorage) pathFor(ownerID int64, name string) string {
	return filepath.Join(ls.basePath, ownerSegment(ownerID), sanitizeName(name))
}

func (ls *LocalStorage) Save(ctx context.Context, ownerID int64, name string, data io.Reader, size int64) (string, error) {
	filePath := ls.pathFor(ownerID, name)

	if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		return "", err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		os.Remove(filePath)
		return "", err
	}

	return filePath, nil
}

func (ls *LocalStorage) Open(ctx context.Context, ownerID int64, name string) (io.ReadCloser, error) {
	file, err := os.Open(ls.pathFor(ownerID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return file, nil
}

func (ls *LocalStorage) Delete(ctx context.Context, ownerID int64, name string) error {
	err := os.Remove(ls.pathFor(ownerID, name))
	if os.IsNotExist(err) {
		return nil
	}

	return err
}

func (ls *LocalStorage) Exists(ctx context.Context, ownerID int64, name string) (bool, error) {
	_, err := os.Stat(ls.pathFor(ownerID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
