package fsx

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 EXDEV、落盘内容损坏等错误。
var (
	renameFunc = os.Rename
	digestFunc = fileDigest
)

// PathTypeConflictError 表示目标路径类型冲突（例如期望目录但实际是文件）。
// 上层可把它映射为 error_code=target_conflict / mkdir_failed。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// TargetExistsError 表示目标文件已存在：重定位永不覆盖。
type TargetExistsError struct {
	Path string
}

func (e *TargetExistsError) Error() string {
	return fmt.Sprintf("目标已存在，拒绝覆盖：%q", e.Path)
}

func (e *TargetExistsError) Unwrap() error { return os.ErrExist }

func IsTargetExists(err error) bool {
	var e *TargetExistsError
	return errors.As(err, &e)
}

// CrossDeviceError 表示跨盘（EXDEV）导致的 rename 失败。
// move 模式遇到 EXDEV 必须失败，不做隐式 copy+delete；需要跨盘请使用 copy 模式。
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("跨盘移动失败（EXDEV）：%q -> %q；请确保源与目标在同一文件系统，或改用 copy 模式：%v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// IsCrossDevice 判断 err 是否为跨盘（EXDEV）错误。
func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename 封装 os.Rename，并把 EXDEV 显式标记为 CrossDeviceError。
func Rename(src, dst string) error {
	if err := renameFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

// EnsureDir 幂等地创建目录（含所有缺失的祖先）。
// 多个 worker 并发创建兄弟目录是安全的；路径已存在但不是目录时返回 PathTypeConflictError。
func EnsureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		return &PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		var pe *os.PathError
		if errors.As(err, &pe) && errors.Is(pe.Err, errNotDir()) {
			return &PathTypeConflictError{Path: pe.Path, Want: "dir", Got: "file"}
		}
		return err
	}
	return nil
}

// EnsureAbsent 要求 dst 不存在：存在普通文件返回 TargetExistsError，存在其他类型返回 PathTypeConflictError。
func EnsureAbsent(dst string) error {
	fi, err := os.Lstat(dst)
	if err == nil {
		if fi.Mode().IsRegular() {
			return &TargetExistsError{Path: dst}
		}
		got := "dir"
		if !fi.IsDir() {
			got = fi.Mode().Type().String()
		}
		return &PathTypeConflictError{Path: dst, Want: "file", Got: got}
	}
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// MoveNoOverwrite 把 src 移动到 dst（同盘 rename）。dst 已存在时不做任何修改。
func MoveNoOverwrite(src, dst string) error {
	if err := EnsureAbsent(dst); err != nil {
		return err
	}
	return Rename(src, dst)
}

// CopyNoOverwrite 把 src 逐字节复制到 dst，源文件保留。
//
// - 先写同目录临时文件（前缀 '.'，扫描会忽略），落盘后重新读取临时文件，
//   大小与 sha256 都与源一致才 rename 到 dst
// - 任何失败都不会留下半成品的 dst
// - 保留源文件的修改时间
func CopyNoOverwrite(src, dst string) error {
	if err := EnsureAbsent(dst); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return err
	}

	dir, name := filepath.Split(dst)
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	srcHash := sha256.New()
	n, err := io.Copy(tmp, io.TeeReader(in, srcHash))
	if err != nil {
		return err
	}
	if n != fi.Size() {
		return fmt.Errorf("复制大小不一致：源 %d 字节，实际写入 %d 字节", fi.Size(), n)
	}
	if err := tmp.Chmod(fi.Mode().Perm()); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	sum, size, err := digestFunc(tmpName)
	if err != nil {
		return fmt.Errorf("复制校验失败：%w", err)
	}
	if size != n || !bytes.Equal(sum, srcHash.Sum(nil)) {
		return errors.New("复制校验失败：磁盘上的内容与源不一致")
	}
	_ = os.Chtimes(tmpName, fi.ModTime(), fi.ModTime())

	// 复制期间目标可能被其他进程创建：rename 前再检查一次。
	if err := EnsureAbsent(dst); err != nil {
		return err
	}
	return Rename(tmpName, dst)
}

// SameContent 判断 a 与 b 是否是内容相同的普通文件：先比大小，再比 sha256。
// 任一方不存在时返回 false 且不报错。
func SameContent(a, b string) (bool, error) {
	fa, err := os.Stat(a)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	fb, err := os.Stat(b)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !fa.Mode().IsRegular() || !fb.Mode().IsRegular() || fa.Size() != fb.Size() {
		return false, nil
	}
	if os.SameFile(fa, fb) {
		return true, nil
	}

	ha, _, err := fileDigest(a)
	if err != nil {
		return false, err
	}
	hb, _, err := fileDigest(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ha, hb), nil
}

func fileDigest(path string) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, 0, err
	}
	return h.Sum(nil), n, nil
}

// WriteFileAtomic 在 dir 下原子写入 name（临时文件 + rename），目标已存在则覆盖。
// 用于 report 等内部状态文件。
func WriteFileAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	dst := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := Rename(tmpName, dst); err != nil {
		return err
	}

	// 目录 fsync：best-effort（不同平台/文件系统的语义差异很大）。
	_ = syncDirBestEffort(dir)
	return nil
}

func syncDirBestEffort(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
