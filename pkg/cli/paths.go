package cli

import (
	"os"
	"path/filepath"
)

// Paths provides access to the ~/.kinectmotion directory structure
type Paths struct {
	// AppName is the application name
	AppName string

	// HomeDir is the user's home directory
	HomeDir string
}

// NewPaths creates a new Paths instance for the given app
func NewPaths(appName string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{
		AppName: appName,
		HomeDir: home,
	}, nil
}

// BaseDir returns the base directory (~/.kinectmotion)
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// AppDir returns the app-specific directory (~/.kinectmotion/<app>)
func (p *Paths) AppDir() string {
	return filepath.Join(p.BaseDir(), p.AppName)
}

// ConfigFile returns the config file path (~/.kinectmotion/<app>/config.yaml)
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.AppDir(), DefaultConfigFile)
}

// TakesDir returns the default take store (~/.kinectmotion/<app>/takes)
func (p *Paths) TakesDir() string {
	return filepath.Join(p.AppDir(), "takes")
}

// ExportsDir returns the default export directory (~/.kinectmotion/<app>/exports)
func (p *Paths) ExportsDir() string {
	return filepath.Join(p.AppDir(), "exports")
}

// RecordingsDir returns where probe recordings go (~/.kinectmotion/<app>/recordings)
func (p *Paths) RecordingsDir() string {
	return filepath.Join(p.AppDir(), "recordings")
}

// RecordingPath returns a path within the recordings directory
func (p *Paths) RecordingPath(name string) string {
	return filepath.Join(p.RecordingsDir(), name)
}

// EnsureDir creates dir if it doesn't exist and returns it
func EnsureDir(dir string) (string, error) {
	return dir, os.MkdirAll(dir, 0755)
}
