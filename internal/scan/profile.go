package scan

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Profile controls what a scan traverses.
type Profile struct {
	ExcludedPaths []string
	SkipHidden    bool
	SkipNetworkFS bool
	MinFileSize   int64

	// ApparentSize uses logical file sizes instead of on-disk allocation.
	ApparentSize bool

	// IsBundle marks directory names that are treated as opaque leaves:
	// their total size is aggregated but their contents are not exposed.
	IsBundle func(name string) bool
}

// DefaultProfile skips dotfiles and well-known pseudo/system trees per OS.
func DefaultProfile() *Profile {
	p := &Profile{
		SkipHidden:    true,
		SkipNetworkFS: true,
		IsBundle:      BundleByExtension,
	}

	switch runtime.GOOS {
	case "linux":
		p.ExcludedPaths = []string{"/proc", "/sys", "/dev", "/run", "/var/lib/docker", "/var/log/lastlog", "/snap"}
	case "darwin":
		p.ExcludedPaths = []string{"/System", "/private/var/vm", "/Volumes/MobileBackups", "/Library/Application Support/MobileSync/Backup"}
	case "windows":
		windir := os.Getenv("WINDIR")
		if windir == "" {
			windir = `C:\Windows`
		}
		p.ExcludedPaths = []string{
			`C:\$Recycle.Bin`,
			`C:\System Volume Information`,
			filepath.Join(windir, "WinSxS"),
			filepath.Join(windir, "Temp"),
		}
	}
	return p
}

var bundleExts = map[string]bool{
	".app":           true,
	".framework":     true,
	".bundle":        true,
	".xcodeproj":     true,
	".photoslibrary": true,
}

// BundleByExtension is the default bundle predicate.
func BundleByExtension(name string) bool {
	return bundleExts[strings.ToLower(filepath.Ext(name))]
}

func shouldExclude(p *Profile, absPath string) bool {
	cmp := func(s string) string {
		if runtime.GOOS == "windows" {
			return strings.ToLower(s)
		}
		return s
	}
	ap := cmp(absPath)
	for _, ex := range p.ExcludedPaths {
		exAbs := cmp(ex)
		if ap == exAbs || strings.HasPrefix(ap, filepath.Clean(exAbs)+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	// Leading dot; on Windows FILE_ATTRIBUTE_HIDDEN is not consulted to
	// keep the dependency surface small.
	return strings.HasPrefix(name, ".")
}
