package config

import "fyne.io/fyne/v2"

// Preference defaults.
const (
	DefaultJPEGQuality   = 95
	DefaultInterpolation = "bilinear"
	DefaultServerAddr    = "127.0.0.1:49453"
)

// AppConfig holds the application-wide configuration
type AppConfig struct {
	prefs fyne.Preferences
}

// NewAppConfig creates a new AppConfig instance
func NewAppConfig(p fyne.Preferences) *AppConfig {
	return &AppConfig{prefs: p}
}

// JPEGQualityKey is the key for the export quality preference
const JPEGQualityKey = "jpeg_quality"

// GetJPEGQuality returns the export JPEG quality, always within [1, 100]
func (c *AppConfig) GetJPEGQuality() int {
	q := c.prefs.IntWithFallback(JPEGQualityKey, DefaultJPEGQuality)
	if q < 1 || q > 100 {
		return DefaultJPEGQuality
	}
	return q
}

// SetJPEGQuality sets the export JPEG quality
func (c *AppConfig) SetJPEGQuality(q int) {
	c.prefs.SetInt(JPEGQualityKey, q)
}

// InterpolationKey is the key for the resampling kernel preference
const InterpolationKey = "interpolation"

// GetInterpolation returns the name of the resampling kernel
func (c *AppConfig) GetInterpolation() string {
	return c.prefs.StringWithFallback(InterpolationKey, DefaultInterpolation)
}

// SetInterpolation sets the name of the resampling kernel
func (c *AppConfig) SetInterpolation(name string) {
	c.prefs.SetString(InterpolationKey, name)
}

// ServerAddrKey is the key for the local API listen address
const ServerAddrKey = "server_addr"

// GetServerAddr returns the address the local API listens on
func (c *AppConfig) GetServerAddr() string {
	addr := c.prefs.StringWithFallback(ServerAddrKey, DefaultServerAddr)
	if addr == "" {
		return DefaultServerAddr
	}
	return addr
}

// SetServerAddr sets the address the local API listens on
func (c *AppConfig) SetServerAddr(addr string) {
	c.prefs.SetString(ServerAddrKey, addr)
}

// AutoFrameKey is the key for the auto-frame on load preference
const AutoFrameKey = "auto_frame"

// GetAutoFrame returns whether new images start at the suggested framing
func (c *AppConfig) GetAutoFrame() bool {
	return c.prefs.BoolWithFallback(AutoFrameKey, false)
}

// SetAutoFrame sets whether new images start at the suggested framing
func (c *AppConfig) SetAutoFrame(enabled bool) {
	c.prefs.SetBool(AutoFrameKey, enabled)
}

// FaceBoostKey is the key for keeping detected faces in auto-frame suggestions
const FaceBoostKey = "face_boost"

// GetFaceBoost returns whether auto-frame keeps detected faces in view
func (c *AppConfig) GetFaceBoost() bool {
	return c.prefs.BoolWithFallback(FaceBoostKey, false)
}

// SetFaceBoost sets whether auto-frame keeps detected faces in view
func (c *AppConfig) SetFaceBoost(enabled bool) {
	c.prefs.SetBool(FaceBoostKey, enabled)
}

// LastOpenDirKey is the key for the directory the open dialog starts in
const LastOpenDirKey = "last_open_dir"

// GetLastOpenDir returns the directory of the last opened file, if any
func (c *AppConfig) GetLastOpenDir() string {
	return c.prefs.String(LastOpenDirKey)
}

// SetLastOpenDir remembers the directory of the last opened file
func (c *AppConfig) SetLastOpenDir(dir string) {
	c.prefs.SetString(LastOpenDirKey, dir)
}
