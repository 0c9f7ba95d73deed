package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"product-copy-api/internal/domain/entity"
)

// DefaultDownloadName 下载文件的默认名称
const DefaultDownloadName = "product-description.txt"

// PlainText 把全部描述拼成纯文本
func PlainText(descriptions []entity.Description) string {
	var b strings.Builder
	for i, d := range descriptions {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		if d.Name != "" {
			b.WriteString(d.Name)
			b.WriteString("\n\n")
		}
		b.WriteString(d.Description)
	}
	b.WriteString("\n")
	return b.String()
}

// Download 把全部描述写入 path；path 为目录或空时使用默认文件名。
// 先写临时文件再重命名，目标文件不会出现半写状态。
func Download(path string, descriptions []entity.Description) (string, error) {
	if len(descriptions) == 0 {
		return "", fmt.Errorf("render: nothing to download")
	}
	if path == "" {
		path = DefaultDownloadName
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultDownloadName)
	}

	if err := writeFileAtomic(path, []byte(PlainText(descriptions)), 0o644); err != nil {
		return "", fmt.Errorf("render: write %s: %w", path, err)
	}
	return path, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".product-description-*")
	if err != nil {
		return err
	}
	tmpPath := f.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(perm); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
