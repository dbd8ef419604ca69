package utils

import (
	"os"
	"path/filepath"
	"strings"
)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	// Get the directory containing the file
	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// OutputPath names the file produced from input: Prog.vm becomes Prog<ext>
// next to it, and a directory Prog/ becomes Prog/Prog<ext>.
func OutputPath(input, ext string) (string, error) {
	fullPath, _, err := GetPathInfo(input)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return filepath.Join(fullPath, filepath.Base(fullPath)+ext), nil
	}
	return strings.TrimSuffix(fullPath, filepath.Ext(fullPath)) + ext, nil
}

// ReplaceExt swaps the extension of path for ext.
func ReplaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
