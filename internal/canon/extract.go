package canon

import (
	"errors"
	"fmt"

	"github.com/John-Robertt/photoarc/internal/domain"
)

// CaptureReader 是“给定文件路径，返回拍摄时间原文”的能力（例如 EXIF DateTimeOriginal）。
// 读不到或字段缺失都返回 error。
type CaptureReader interface {
	CaptureTime(path string) (string, error)
}

// CaptureReaderFunc 让普通函数满足 CaptureReader（测试里常用）。
type CaptureReaderFunc func(path string) (string, error)

func (f CaptureReaderFunc) CaptureTime(path string) (string, error) { return f(path) }

const (
	MissEmptyKey   = "empty_key"
	MissUnreadable = "unreadable"
	MissBadStamp   = "invalid_timestamp"
)

// MissError 表示“无法推导时间戳”：该文件不进入翻译表，但不是致命错误。
type MissError struct {
	Path   string
	Reason string
	Raw    string
	Err    error
}

func (e *MissError) Error() string {
	switch e.Reason {
	case MissEmptyKey:
		return fmt.Sprintf("%s：文件名没有可用的 key", e.Path)
	case MissBadStamp:
		return fmt.Sprintf("%s：拍摄时间无法规范化：%q", e.Path, e.Raw)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：读取拍摄时间失败：%v", e.Path, e.Err)
		}
		return fmt.Sprintf("%s：读取拍摄时间失败", e.Path)
	}
}

func (e *MissError) Unwrap() error { return e.Err }

// IsMiss 判断 err 是否为 MissError。
func IsMiss(err error) bool {
	var e *MissError
	return errors.As(err, &e)
}

// Extract 为单个文件推导 (Key, CanonicalFilename)。
//
// - stem 已是 28 位规范名：原样返回，不读取元数据（幂等保证）
// - 否则读取拍摄时间，规范化后拼成 "<stamp>_<key>"
// - 读取失败/字段缺失/格式不合法：返回 *MissError
//
// Extract 只读文件系统，可并发调用。
func Extract(f domain.PictureFile, r CaptureReader) (domain.Extraction, error) {
	key := domain.KeyOf(f.Stem)
	if key == "" {
		return domain.Extraction{}, &MissError{Path: f.AbsPath, Reason: MissEmptyKey}
	}

	if domain.IsCanonical(f.Stem) {
		return domain.Extraction{Key: key, Name: f.Stem, Reused: true}, nil
	}

	raw, err := r.CaptureTime(f.AbsPath)
	if err != nil {
		return domain.Extraction{}, &MissError{Path: f.AbsPath, Reason: MissUnreadable, Err: err}
	}
	stamp, ok := domain.NormalizeStamp(raw)
	if !ok {
		return domain.Extraction{}, &MissError{Path: f.AbsPath, Reason: MissBadStamp, Raw: raw}
	}
	return domain.Extraction{Key: key, Name: domain.CanonicalName(stamp, key)}, nil
}
