package mirror

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS 是基于 Google Cloud Storage 的 Remote 实现。
type GCS struct {
	client *storage.Client
	bucket string
}

var _ Remote = (*GCS)(nil)

// NewGCS 创建 GCS 客户端。endpoint 非空时（例如本地模拟器）不做认证。
// 认证使用 Application Default Credentials。
func NewGCS(ctx context.Context, bucket, endpoint string) (*GCS, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("mirror bucket 不能为空")
	}
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建 GCS 客户端失败：%w", err)
	}
	return &GCS{client: c, bucket: bucket}, nil
}

func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) Location(prefix string) string {
	if prefix == "" {
		return "gs://" + g.bucket
	}
	return "gs://" + g.bucket + "/" + prefix
}

func (g *GCS) List(ctx context.Context, prefix string) (map[string]int64, error) {
	q := &storage.Query{}
	if prefix != "" {
		q.Prefix = prefix + "/"
	}
	if err := q.SetAttrSelection([]string{"Name", "Size"}); err != nil {
		return nil, err
	}

	out := map[string]int64{}
	it := g.client.Bucket(g.bucket).Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("列出对象失败：%w", err)
		}
		out[attrs.Name] = attrs.Size
	}
	return out, nil
}

// Upload 以 DoesNotExist 前置条件写入对象：同名对象已存在时返回错误，永不覆盖。
func (g *GCS) Upload(ctx context.Context, localPath, name string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return g.write(ctx, f, name)
}

// write 把 r 流式写入对象 name。
// storage.Writer.Close 会提交已写入的部分，所以读取失败时先取消 writer 的 ctx 再 Close，
// 远端不会留下截断的对象。
func (g *GCS) write(ctx context.Context, r io.Reader, name string) (int64, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obj := g.client.Bucket(g.bucket).Object(name).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(wctx)
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		w.ContentType = ct
	} else {
		w.ContentType = "application/octet-stream"
	}

	n, err := io.Copy(w, r)
	if err != nil {
		cancel()
		_ = w.Close()
		return 0, fmt.Errorf("写入 GCS 失败：%w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("完成 GCS 上传失败：%w", err)
	}
	return n, nil
}
