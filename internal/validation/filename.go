package validation

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// MaxFileNameLength is the longest accepted document name, in characters.
const MaxFileNameLength = 255

var blockedExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true, ".scr": true,
	".vbs": true, ".js": true, ".jar": true, ".msi": true, ".ps1": true,
	".sh": true, ".dll": true, ".app": true,
}

// ValidateFileName checks a client-supplied document name. It rejects empty
// names, path traversal, path separators, NUL bytes, executable extensions and
// names longer than MaxFileNameLength.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("file name is required")
	}
	if utf8.RuneCountInString(name) > MaxFileNameLength {
		return fmt.Errorf("file name must be %d characters or fewer", MaxFileNameLength)
	}
	if strings.Contains(name, "..") {
		return errors.New("file name must not contain '..'")
	}
	if strings.ContainsAny(name, `/\`) {
		return errors.New("file name must not contain path separators")
	}
	if strings.ContainsRune(name, 0) {
		return errors.New("file name contains invalid characters")
	}
	if ext := strings.ToLower(path.Ext(strings.TrimRight(name, ". "))); blockedExtensions[ext] {
		return fmt.Errorf("files of type %s are not allowed", ext)
	}
	return nil
}
