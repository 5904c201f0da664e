//go:build unix

package fsx

import (
	"os"
	"syscall"
	"testing"
)

func TestRename_CrossDeviceEXDEV(t *testing.T) {
	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	defer func() { renameFunc = old }()

	err := Rename("/pics/a.jpg", "/mnt/b.jpg")
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if !IsCrossDevice(err) {
		t.Fatalf("期望 CrossDeviceError，实际：%T %v", err, err)
	}
}

func TestMoveNoOverwrite_CrossDevice(t *testing.T) {
	root := t.TempDir()
	src := root + "/a.jpg"
	if err := os.WriteFile(src, []byte("A"), 0o644); err != nil {
		t.Fatalf("写文件失败：%v", err)
	}

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	defer func() { renameFunc = old }()

	err := MoveNoOverwrite(src, root+"/b.jpg")
	if !IsCrossDevice(err) {
		t.Fatalf("期望 CrossDeviceError，实际：%T %v", err, err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("跨盘失败时源文件必须保留：%v", err)
	}
}
