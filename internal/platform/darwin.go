//go:build darwin

package platform

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

type Darwin struct{ Default }

func (Darwin) AllocatedSize(fi os.FileInfo) int64 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return int64(st.Blocks) * 512
	}
	return fi.Size()
}

func (Darwin) InodeKeyOf(fi os.FileInfo) (InodeKey, bool) {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return InodeKey{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}, true
	}
	return InodeKey{}, false
}

func (Darwin) OpenInFileBrowser(p string) error {
	if info, err := os.Stat(p); err == nil && !info.IsDir() {
		return exec.Command("open", "-R", p).Run() // reveal
	}
	return exec.Command("open", p).Run()
}

// MoveToTrash renames into ~/.Trash, suffixing the name Finder-style on
// collisions. Cross-volume moves fail with EXDEV and are surfaced as-is.
func (Darwin) MoveToTrash(p string) error {
	abs, err := filepath.Abs(p)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(abs); err != nil {
		return err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	trash := filepath.Join(home, ".Trash")
	dest := filepath.Join(trash, filepath.Base(abs))
	if _, err := os.Lstat(dest); err == nil {
		stamp := time.Now().Format("15.04.05")
		dest = filepath.Join(trash, fmt.Sprintf("%s %s", filepath.Base(abs), stamp))
		for i := 2; ; i++ {
			if _, err := os.Lstat(dest); os.IsNotExist(err) {
				break
			}
			dest = filepath.Join(trash, fmt.Sprintf("%s %s.%d", filepath.Base(abs), stamp, i))
		}
	}
	return os.Rename(abs, dest)
}

func init() { Impl = Darwin{} }
