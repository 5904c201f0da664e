package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/John-Robertt/photoarc/internal/infra/fsx"
)

// DirName 是图库根目录下的状态目录。以 '.' 开头，扫描时会被跳过。
const DirName = ".photoarc"

const (
	reportName = "report.json"
	lockName   = "lock"
)

// Store 管理 <path>/.photoarc/ 下的运行状态（锁 + 最近一次 report）。
//
// 约束：
// - dry-run：只读（ReadOnly=true），不创建目录、不加锁
// - apply：允许写（ReadOnly=false）
type Store struct {
	Root     string // <path>（扫描根目录）
	ReadOnly bool
}

var (
	ErrReadOnly = errors.New("state: read-only")
	// ErrLocked 表示另一个进程正在对同一图库执行 apply。
	ErrLocked = errors.New("state: 另一个 photoarc 进程正在处理该目录")
)

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

func (s Store) Dir() string { return filepath.Join(s.Root, DirName) }

func (s Store) ReportPath() string { return filepath.Join(s.Dir(), reportName) }

func (s Store) LockPath() string { return filepath.Join(s.Dir(), lockName) }

// WriteReport 原子覆盖 report.json。
func (s Store) WriteReport(b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	return fsx.WriteFileAtomic(s.Dir(), reportName, b)
}

// Lock 以非阻塞方式获取图库的排他锁，返回释放函数。
// 已被其他进程持有时返回 ErrLocked。
func (s Store) Lock() (func() error, error) {
	if s.ReadOnly {
		return nil, ErrReadOnly
	}
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("创建状态目录失败：%w", err)
	}

	l := flock.New(s.LockPath())
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("获取锁失败：%w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return l.Unlock, nil
}
