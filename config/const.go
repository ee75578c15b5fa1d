package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// AppVersion is the version of the application, set at build time.
var AppVersion = "dev"

// AppName is the name of the application.
const AppName = "SquareFrame"

// AppID is the fyne application ID; preferences are stored under it.
const AppID = "com.dixieflatline76.squareframe"

// LogWinSubDir is the sub directory for the log files on windows.
var LogWinSubDir = AppName

// LogSubDir is the sub directory for the log files.
var LogSubDir = "." + strings.ToLower(AppName)

// LogExt is the extension for the log files.
var LogExt = ".log"

// LogDir returns the directory release builds write their log file to.
func LogDir() (string, error) {
	if runtime.GOOS == "windows" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(cacheDir, LogWinSubDir), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, LogSubDir), nil
}
