package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

// Default docker context names and hosts. The linux host is the named pipe
// the socket-forwarding proxy listens on; the windows host is where a native
// dockerd service would listen.
const (
	DefaultContextName  = "default"
	LinuxContextName    = "desktop-linux"
	WindowsContextName  = "desktop-windows"
	LinuxContextHost    = "npipe:////./pipe/dockerDesktopLinuxEngine"
	WindowsContextHost  = "npipe:////./pipe/dockerDesktopWindowsEngine"
	DefaultDistribution = "stevedore"
	DefaultLockName     = "stevedore"
)

// Config holds stevedore runtime configuration.
type Config struct {
	// AppDir is the read-only directory with the bundled helper binaries
	// and the guest root filesystem tarball.
	AppDir string `toml:"-"`

	// DataDir is the per-user read-write directory. The WSL distribution
	// disk, logs, and the session journal live here.
	DataDir string `toml:"data_dir"`

	// LockName is the name of the single-instance lock.
	LockName string `toml:"lock_name"`

	// Distribution is the WSL distribution name.
	Distribution string `toml:"distribution"`

	// GuestVersion is the WSL version the distribution is imported with.
	GuestVersion string `toml:"guest_version"`

	// ImportArtifact is the root filesystem tarball imported on first run.
	ImportArtifact string `toml:"import_artifact"`

	// WSLBin is the wsl.exe path. Empty means search PATH.
	WSLBin string `toml:"wsl_bin"`

	// DockerBin is the docker CLI used for context management.
	DockerBin string `toml:"docker_bin"`

	// ProxyBin is the host-side socket-forwarding proxy.
	ProxyBin string `toml:"proxy_bin"`

	// GuestSocket is the engine socket inside the guest.
	GuestSocket string `toml:"guest_socket"`

	// LinuxContext and WindowsContext are the docker contexts managed for
	// the guest engine and a native engine respectively.
	LinuxContext   Context `toml:"linux_context"`
	WindowsContext Context `toml:"windows_context"`

	// CommandTimeout bounds each blocking wsl/docker CLI call.
	CommandTimeout time.Duration `toml:"command_timeout"`

	// ImportTimeout bounds the initial distribution import, which unpacks
	// the whole root filesystem.
	ImportTimeout time.Duration `toml:"import_timeout"`

	// ReadyTimeout is how long to wait for the proxy endpoint after spawn.
	// Zero disables the wait.
	ReadyTimeout time.Duration `toml:"ready_timeout"`

	// ReimportOnProbeFailure unregisters and re-imports a registered
	// distribution that fails the liveness probe. Off by default: the
	// unregister wipes the guest disk.
	ReimportOnProbeFailure bool `toml:"reimport_on_probe_failure"`

	// LogLevel is a logrus level name.
	LogLevel string `toml:"log_level"`
}

// Context names a docker context and the engine host it points at.
type Context struct {
	Name string `toml:"name"`
	Host string `toml:"host"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	appDir := executableDir()

	return &Config{
		AppDir:         appDir,
		DataDir:        defaultDataDir(),
		LockName:       DefaultLockName,
		Distribution:   DefaultDistribution,
		GuestVersion:   "2",
		ImportArtifact: filepath.Join(appDir, "stevedore.tar.gz"),
		WSLBin:         "",
		DockerBin:      bundledOrPath(appDir, "docker"),
		ProxyBin:       filepath.Join(appDir, exeName("docker-wsl-proxy")),
		GuestSocket:    "/var/run/docker.sock",
		LinuxContext:   Context{Name: LinuxContextName, Host: LinuxContextHost},
		WindowsContext: Context{Name: WindowsContextName, Host: WindowsContextHost},
		CommandTimeout: 30 * time.Second,
		ImportTimeout:  10 * time.Minute,
		ReadyTimeout:   10 * time.Second,
		LogLevel:       "info",
	}
}

// Load returns DefaultConfig overlaid with the TOML file at path. A missing
// file is not an error unless the path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = cfg.FilePath()
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) || explicit {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	if v := os.Getenv("STEVEDORE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, cfg.Validate()
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Distribution == "":
		return fmt.Errorf("config: distribution name is empty")
	case c.LockName == "":
		return fmt.Errorf("config: lock name is empty")
	case c.DataDir == "":
		return fmt.Errorf("config: data dir is empty")
	case c.LinuxContext.Name == "" || c.LinuxContext.Host == "":
		return fmt.Errorf("config: linux context needs a name and host")
	case c.LinuxContext.Name == DefaultContextName || c.WindowsContext.Name == DefaultContextName:
		return fmt.Errorf("config: context name %q is reserved", DefaultContextName)
	}
	return nil
}

// FilePath is the default location of the TOML config file.
func (c *Config) FilePath() string {
	return filepath.Join(c.DataDir, "config.toml")
}

// DistributionDir holds the WSL distribution's virtual disk.
func (c *Config) DistributionDir() string {
	return filepath.Join(c.DataDir, "distribution")
}

// LogsDir holds stevedore's own log files.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// JournalPath is the session journal database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "stevedore.db")
}

// EnsureDirs creates all required directories.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.DataDir,
		c.DistributionDir(),
		c.LogsDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// defaultDataDir resolves %LOCALAPPDATA%\Stevedore on Windows and the user
// cache dir elsewhere.
func defaultDataDir() string {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, "Stevedore")
		}
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "stevedore")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".stevedore")
}

// bundledOrPath prefers a binary shipped next to stevedore and falls back to
// a bare name resolved through PATH.
func bundledOrPath(appDir, name string) string {
	candidate := filepath.Join(appDir, exeName(name))
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return name
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// executableDir returns the directory containing the current executable.
func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
