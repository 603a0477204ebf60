package preprocess

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// Dedup 合并内容相同的主 APK，其他实体原样保留。
// 输出为去重后的主 APK 加上非主包实体，保留的主 APK 会带上内容指纹。
func Dedup(ctx context.Context, entities []domain.AppEntity) ([]domain.AppEntity, error) {
	if len(domain.Bases(entities)) <= 1 {
		return entities, nil
	}

	seen := make(map[string]bool)
	var bases, others []domain.AppEntity
	for _, e := range entities {
		base, ok := e.(*domain.BaseEntity)
		if !ok {
			others = append(others, e)
			continue
		}

		fp, err := Fingerprint(ctx, base)
		if err != nil {
			return nil, err
		}
		if seen[fp] {
			continue
		}
		seen[fp] = true

		kept := *base
		kept.ContentHash = fp
		bases = append(bases, &kept)
	}

	return append(bases, others...), nil
}

// Fingerprint 主 APK 的内容指纹。
// 本地文件取 SHA-256；zip 条目取中央目录的 CRC-32 和原始大小；
// 其他来源或计算失败时退化为 标识|版本号，只会少合并，不会误合并。
func Fingerprint(ctx context.Context, base *domain.BaseEntity) (string, error) {
	fallback := fmt.Sprintf("id:%s|%d", identity(base.Data()), base.VersionCode)

	switch ds := base.Data().(type) {
	case *datasource.File:
		sum, err := fileSHA256(ctx, ds.Path)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return fallback, nil
		}
		return "sha256:" + sum, nil
	case *datasource.ZipEntryInFile:
		h, err := ds.Header()
		if err != nil {
			return fallback, nil
		}
		return fmt.Sprintf("crc32:%08x|%d", h.CRC32, h.UncompressedSize64), nil
	default:
		return fallback, nil
	}
}

func identity(ds datasource.DataSource) string {
	if ds == nil {
		return ""
	}
	return ds.String()
}

func fileSHA256(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := f.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
