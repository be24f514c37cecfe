package scan

import (
	"path/filepath"
	"strings"
)

// Category buckets entries for coloring and iconography only; it carries no
// weight in layout or aggregation.
type Category string

const (
	CategoryDocument Category = "document"
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryArchive  Category = "archive"
	CategoryApp      Category = "app"
	CategoryOther    Category = "other"
)

var extCategories = map[string]Category{
	".pdf": CategoryDocument, ".doc": CategoryDocument, ".docx": CategoryDocument,
	".txt": CategoryDocument, ".md": CategoryDocument, ".rtf": CategoryDocument,
	".pages": CategoryDocument, ".key": CategoryDocument, ".numbers": CategoryDocument,
	".xls": CategoryDocument, ".xlsx": CategoryDocument, ".ppt": CategoryDocument,
	".pptx": CategoryDocument, ".csv": CategoryDocument,

	".jpg": CategoryImage, ".jpeg": CategoryImage, ".png": CategoryImage,
	".gif": CategoryImage, ".heic": CategoryImage, ".webp": CategoryImage,
	".tiff": CategoryImage, ".bmp": CategoryImage, ".svg": CategoryImage,
	".psd": CategoryImage, ".raw": CategoryImage,

	".mp4": CategoryVideo, ".mov": CategoryVideo, ".avi": CategoryVideo,
	".mkv": CategoryVideo, ".webm": CategoryVideo, ".m4v": CategoryVideo,
	".flv": CategoryVideo, ".wmv": CategoryVideo,

	".mp3": CategoryAudio, ".wav": CategoryAudio, ".aac": CategoryAudio,
	".flac": CategoryAudio, ".m4a": CategoryAudio, ".ogg": CategoryAudio,
	".aiff": CategoryAudio,

	".zip": CategoryArchive, ".tar": CategoryArchive, ".gz": CategoryArchive,
	".bz2": CategoryArchive, ".xz": CategoryArchive, ".7z": CategoryArchive,
	".rar": CategoryArchive, ".dmg": CategoryArchive, ".iso": CategoryArchive,
	".pkg": CategoryArchive,

	".app": CategoryApp, ".exe": CategoryApp,
}

// CategoryOf is a pure function of the path's extension.
func CategoryOf(path string) Category {
	ext := strings.ToLower(filepath.Ext(path))
	if c, ok := extCategories[ext]; ok {
		return c
	}
	return CategoryOther
}
