package exifx

import (
	"errors"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// ErrNoCaptureTime 表示 EXIF 可解析，但没有任何拍摄时间字段。
var ErrNoCaptureTime = errors.New("exif: 没有拍摄时间字段")

// captureFields 是拍摄时间的候选字段（按优先级）。
// DateTime（tag 306）在 IFD0 中，很多只写了 IFD0 的工具也会保留它。
var captureFields = []exif.FieldName{exif.DateTimeOriginal, exif.DateTime}

// Reader 用 goexif 读取 JPEG/TIFF（以及基于 TIFF 的 RAW）中的拍摄时间原文。
type Reader struct{}

// CaptureTime 返回形如 "2021:05:02 10:15:00" 的原文（不做规范化）。
func (Reader) CaptureTime(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return "", err
	}

	for _, name := range captureFields {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
		if s != "" {
			return s, nil
		}
	}
	return "", ErrNoCaptureTime
}
