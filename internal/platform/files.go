package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// Filename constraints
const (
	MaxFilenameLength = 120
	DefaultFileName   = "video"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Sanitize maps a title to a portable filename stem: every character outside
// [a-zA-Z0-9] becomes an underscore, the result is lowercased and truncated.
// Distinct titles may collide.
func Sanitize(name string) string {
	s := strings.ToLower(unsafeFilenameChars.ReplaceAllString(name, "_"))
	if len(s) > MaxFilenameLength {
		s = s[:MaxFilenameLength]
	}
	if s == "" {
		return DefaultFileName
	}
	return s
}

// Destination describes where a job writes its output
type Destination struct {
	Dir        string // caller-requested directory, may be empty
	DefaultDir string // used when Dir is empty or missing
	Subfolder  bool
	Collection string
	Title      string
	Ext        string
}

// DestinationPath resolves the output file path, creating the base directory
// and the optional collection subfolder when they are missing.
func DestinationPath(d Destination) (string, error) {
	base := d.DefaultDir
	if d.Dir != "" && IsDir(d.Dir) {
		base = d.Dir
	}
	if base == "" {
		dir, err := GetHomeDownloadsDir()
		if err != nil {
			return "", err
		}
		base = dir
	}
	if err := CreateDirectoryIfNotExists(base); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	if d.Subfolder && d.Collection != "" {
		base = filepath.Join(base, Sanitize(d.Collection))
		if err := CreateDirectoryIfNotExists(base); err != nil {
			return "", fmt.Errorf("failed to create subfolder: %w", err)
		}
	}

	ext := strings.TrimPrefix(strings.ToLower(d.Ext), ".")
	return filepath.Join(base, Sanitize(d.Title)+"."+ext), nil
}

// FileExists reports whether path names an existing regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsDir reports whether path names an existing directory
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); errors.Is(err, fs.ErrNotExist) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// GetHomeDownloadsDir returns the standard Downloads directory for the user
func GetHomeDownloadsDir() (string, error) {
	if runtime.GOOS == "android" || os.Getenv("ANDROID_DATA") != "" {
		return "/sdcard/Download", nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, "Downloads"), nil
}
