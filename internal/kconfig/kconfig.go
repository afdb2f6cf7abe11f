// Package kconfig loads the boot configuration TOML file: core count,
// buffer cache size, log size, and the disk image path. xv6 hardcodes
// these as param.h constants; this keeps those values as defaults and lets
// a boot file override them, the way a real deployment parameterizes QEMU
// `-smp`/`-m` flags instead of recompiling. In cmd/xv6, buffer_cache_size
// only sizes the kernel's page arena (the buffer cache always holds NBuf
// buffers), log_size_blocks only enters the size of a newly created disk
// image (the kernel takes its log region from the superblock), and
// mount_point is not read.
package kconfig

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the parsed boot configuration.
type Config struct {
	NCPU          int    `toml:"ncpu"`
	BufferCacheSize int  `toml:"buffer_cache_size"`
	LogSizeBlocks int    `toml:"log_size_blocks"`
	DiskImagePath string `toml:"disk_image"`
	MountPoint    string `toml:"mount_point"`
}

// Default returns the param.go-equivalent compiled-in defaults.
func Default() Config {
	return Config{
		NCPU:            8,
		BufferCacheSize: 30,
		LogSizeBlocks:   33,
		DiskImagePath:   "xv6.img",
		MountPoint:      "/",
	}
}

// Load reads and parses a boot TOML file, starting from Default() so a
// partial file only overrides the fields it mentions.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("kconfig: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("kconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}
