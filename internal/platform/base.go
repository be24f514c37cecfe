package platform

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

type InodeKey struct{ Dev, Ino uint64 }

// ErrTrashUnsupported is returned where the platform has no trash primitive.
var ErrTrashUnsupported = errors.New("move to trash is not supported on this platform")

type API interface {
	AllocatedSize(os.FileInfo) int64
	InodeKeyOf(os.FileInfo) (InodeKey, bool)
	BaseName(string) string
	IsMountRoot(string) bool
	IsLikelyNetworkFS(string) bool
	OpenInFileBrowser(string) error
	MoveToTrash(string) error
	Canonicalize(string) string
	DefaultStartPath() string
}

// -------- defaults (POSIX-ish + xdg) --------

type Default struct{}

func (Default) AllocatedSize(fi os.FileInfo) int64      { return fi.Size() }
func (Default) InodeKeyOf(os.FileInfo) (InodeKey, bool) { return InodeKey{}, false }

func (Default) BaseName(p string) string {
	b := filepath.Base(p)
	if b == "." || b == string(os.PathSeparator) || b == "" {
		return "/"
	}
	return b
}

func (Default) IsMountRoot(p string) bool {
	p, _ = filepath.Abs(p)
	return filepath.Clean(p) == "/"
}

func (Default) IsLikelyNetworkFS(string) bool { return false }

func (Default) OpenInFileBrowser(p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return exec.Command("xdg-open", p).Run()
	}
	return exec.Command("xdg-open", filepath.Dir(p)).Run()
}

// MoveToTrash implements the freedesktop.org trash layout
// (~/.local/share/Trash/{files,info}).
func (Default) MoveToTrash(p string) error {
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
	filesDir := filepath.Join(home, ".local", "share", "Trash", "files")
	infoDir := filepath.Join(home, ".local", "share", "Trash", "info")
	if err := os.MkdirAll(filesDir, 0o700); err != nil {
		return err
	}
	if err := os.MkdirAll(infoDir, 0o700); err != nil {
		return err
	}

	name := uniqueTrashName(filesDir, filepath.Base(abs))
	escaped := (&url.URL{Path: abs}).EscapedPath()
	info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		escaped, time.Now().Format("2006-01-02T15:04:05"))
	infoPath := filepath.Join(infoDir, name+".trashinfo")
	if err := os.WriteFile(infoPath, []byte(info), 0o600); err != nil {
		return err
	}
	if err := os.Rename(abs, filepath.Join(filesDir, name)); err != nil {
		_ = os.Remove(infoPath)
		return err
	}
	return nil
}

// uniqueTrashName picks a destination name that does not collide with an
// earlier trashing of the same base name.
func uniqueTrashName(dir, base string) string {
	cand := base
	for i := 2; ; i++ {
		if _, err := os.Lstat(filepath.Join(dir, cand)); os.IsNotExist(err) {
			return cand
		}
		cand = fmt.Sprintf("%s.%d", base, i)
	}
}

func (Default) Canonicalize(p string) string {
	abs, _ := filepath.Abs(p)
	return filepath.Clean(abs)
}

func (Default) DefaultStartPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		if fi, err := os.Stat(h); err == nil && fi.IsDir() {
			return h
		}
	}
	return string(os.PathSeparator)
}

// Global chosen implementation (overridden in per-OS files during init()).
var Impl API = Default{}
