package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/kelseyhightower/envconfig"

	"github.com/data-forge-notebook/data-forge-notebook/internal/portalloc"
)

const (
	BaseDirName    = ".config/evalshell"
	ConfigFileName = "config.hcl"
	PidFileName    = "shell.pid"
	SocketName     = "shell.sock"
	DatabaseName   = "journal.db"
)

// Config is the global configuration instance
var Config *Configuration

// Configuration represents the complete shell configuration
type Configuration struct {
	ConfigPath string        // Directory containing config, socket and journal
	Verbose    int           // Verbosity level
	Port       PortConfig    // Port allocation range
	Backend    BackendConfig // How to launch the evaluation engine
	Logs       LogsConfig
	UI         UIConfig
}

// PortConfig is the half-open range [RangeStart, RangeEnd) scanned for a free port
type PortConfig struct {
	RangeStart int
	RangeEnd   int
}

// BackendConfig describes the bundled backend and its runtime
type BackendConfig struct {
	InstallPath  string            // Directory holding the bundled runtime and engine
	EngineDir    string            // Engine directory, relative to InstallPath unless absolute
	Runtime      string            // Interpreter executable, relative to InstallPath unless absolute
	EntryPoint   string            // Entry point script, relative to the engine directory
	Args         []string          // Runtime arguments placed before the entry point
	Environment  map[string]string // Extra environment for the child
	PortVariable string            // Environment variable carrying the allocated port
	Preflight    []string          // Optional command run once before the first launch
	StopTimeout  time.Duration     // Grace period before the child is killed on exit
}

// LogsConfig controls the in-memory log history served to `logs` clients
type LogsConfig struct {
	HistorySize int
}

// UIConfig describes the UI process the shell serves
type UIConfig struct {
	MonitorPID int // PID whose disappearance counts as the window closing (0 disables)
}

// envOverrides are the development and testing overrides read from the environment
type envOverrides struct {
	InstallPath   string `envconfig:"INSTALL_PATH"`
	EvalEngineDir string `envconfig:"DEV_EVAL_ENGINE_DIR"`
	MonitorPID    int    `envconfig:"EVALSHELL_MONITOR_PID"`
}

// HCL parsing structs

type hclConfig struct {
	Verbose int         `hcl:"verbose,optional"`
	Port    *hclPort    `hcl:"port,block"`
	Backend *hclBackend `hcl:"backend,block"`
	Logs    *hclLogs    `hcl:"logs,block"`
	UI      *hclUI      `hcl:"ui,block"`
}

type hclPort struct {
	RangeStart int `hcl:"range_start,optional"`
	RangeEnd   int `hcl:"range_end,optional"`
}

type hclBackend struct {
	InstallPath  string            `hcl:"install_path,optional"`
	EngineDir    string            `hcl:"engine_dir,optional"`
	Runtime      string            `hcl:"runtime,optional"`
	EntryPoint   string            `hcl:"entry_point,optional"`
	Args         []string          `hcl:"args,optional"`
	Environment  map[string]string `hcl:"environment,optional"`
	PortVariable string            `hcl:"port_variable,optional"`
	Preflight    []string          `hcl:"preflight,optional"`
	StopTimeout  string            `hcl:"stop_timeout,optional"`
}

type hclLogs struct {
	HistorySize int `hcl:"history_size,optional"`
}

type hclUI struct {
	MonitorPID int `hcl:"monitor_pid,optional"`
}

// GetDefaultConfig returns a Configuration with default values
func GetDefaultConfig() *Configuration {
	runtimePath := "node/node"
	if runtime.GOOS == "windows" {
		runtimePath = "node/node.exe"
	}
	return &Configuration{
		Port: PortConfig{
			RangeStart: portalloc.DefaultRangeStart,
			RangeEnd:   portalloc.DefaultRangeEnd,
		},
		Backend: BackendConfig{
			InstallPath:  defaultInstallPath(),
			EngineDir:    "evaluation-engine",
			Runtime:      runtimePath,
			EntryPoint:   "build/index.js",
			Args:         []string{"--expose-gc", "--max-old-space-size=10000"},
			Environment:  make(map[string]string),
			PortVariable: "PORT",
			StopTimeout:  5 * time.Second,
		},
		Logs: LogsConfig{HistorySize: 1000},
	}
}

// defaultInstallPath is the directory of the running executable, two levels
// up on macOS where the binary sits inside the app bundle
func defaultInstallPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	dir := filepath.Dir(exe)
	if runtime.GOOS == "darwin" {
		dir = filepath.Dir(dir)
	}
	return dir
}

// LoadConfig loads the HCL configuration file and returns a Configuration struct
func LoadConfig(filename string) (*Configuration, error) {
	var hclCfg hclConfig

	err := hclsimple.DecodeFile(filename, nil, &hclCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.Verbose = hclCfg.Verbose

	if p := hclCfg.Port; p != nil {
		if p.RangeStart != 0 {
			cfg.Port.RangeStart = p.RangeStart
		}
		if p.RangeEnd != 0 {
			cfg.Port.RangeEnd = p.RangeEnd
		}
	}

	if b := hclCfg.Backend; b != nil {
		if b.InstallPath != "" {
			cfg.Backend.InstallPath = expandPath(b.InstallPath)
		}
		if b.EngineDir != "" {
			cfg.Backend.EngineDir = expandPath(b.EngineDir)
		}
		if b.Runtime != "" {
			cfg.Backend.Runtime = expandPath(b.Runtime)
		}
		if b.EntryPoint != "" {
			cfg.Backend.EntryPoint = b.EntryPoint
		}
		if b.PortVariable != "" {
			cfg.Backend.PortVariable = b.PortVariable
		}
		if b.Args != nil {
			cfg.Backend.Args = b.Args
		}
		cfg.Backend.Preflight = b.Preflight
		for k, v := range b.Environment {
			cfg.Backend.Environment[k] = v
		}
		if b.StopTimeout != "" {
			d, err := time.ParseDuration(b.StopTimeout)
			if err != nil {
				return nil, fmt.Errorf("invalid backend.stop_timeout %q: %w", b.StopTimeout, err)
			}
			cfg.Backend.StopTimeout = d
		}
	}

	if hclCfg.Logs != nil && hclCfg.Logs.HistorySize > 0 {
		cfg.Logs.HistorySize = hclCfg.Logs.HistorySize
	}

	if hclCfg.UI != nil {
		cfg.UI.MonitorPID = hclCfg.UI.MonitorPID
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail late, at allocation or launch
func (c *Configuration) Validate() error {
	if c.Port.RangeStart < 1 || c.Port.RangeEnd > 65536 || c.Port.RangeStart >= c.Port.RangeEnd {
		return fmt.Errorf("invalid port range [%d, %d)", c.Port.RangeStart, c.Port.RangeEnd)
	}
	if c.Backend.PortVariable == "" {
		return errors.New("backend.port_variable must not be empty")
	}
	if c.Backend.Runtime == "" {
		return errors.New("backend.runtime must not be empty")
	}
	return nil
}

// ApplyEnvironment applies INSTALL_PATH, DEV_EVAL_ENGINE_DIR and
// EVALSHELL_MONITOR_PID on top of the file configuration
func (c *Configuration) ApplyEnvironment() error {
	var o envOverrides
	if err := envconfig.Process("", &o); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}
	if o.InstallPath != "" {
		c.Backend.InstallPath = o.InstallPath
	}
	if o.EvalEngineDir != "" {
		c.Backend.EngineDir = o.EvalEngineDir
	}
	if o.MonitorPID != 0 {
		c.UI.MonitorPID = o.MonitorPID
	}
	return nil
}

// EngineDirPath resolves the engine directory against the install path
func (b BackendConfig) EngineDirPath() string {
	return resolveAgainst(b.InstallPath, b.EngineDir)
}

// RuntimePath resolves the runtime executable against the install path
func (b BackendConfig) RuntimePath() string {
	return resolveAgainst(b.InstallPath, b.Runtime)
}

// EntryPointPath resolves the entry point against the engine directory
func (b BackendConfig) EntryPointPath() string {
	return resolveAgainst(b.EngineDirPath(), b.EntryPoint)
}

// PreflightCommand resolves the preflight executable against the install path
func (b BackendConfig) PreflightCommand() []string {
	if len(b.Preflight) == 0 {
		return nil
	}
	argv := make([]string, len(b.Preflight))
	copy(argv, b.Preflight)
	argv[0] = resolveAgainst(b.InstallPath, argv[0])
	return argv
}

func resolveAgainst(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// expandPath expands a leading ~ to the user's home directory
func expandPath(p string) string {
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[1:])
	}
	return p
}

// InitializeConfig loads <configPath>/config.hcl (defaults when absent),
// applies environment overrides and the verbosity flag, and stores the
// result in Config
func InitializeConfig(configPath string, verbose int) (*Configuration, error) {
	filename := filepath.Join(configPath, ConfigFileName)

	var cfg *Configuration
	if ConfigExists(filename) {
		loaded, err := LoadConfig(filename)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = GetDefaultConfig()
	}

	if err := cfg.ApplyEnvironment(); err != nil {
		return nil, err
	}
	cfg.ConfigPath = configPath
	if verbose > cfg.Verbose {
		cfg.Verbose = verbose
	}

	Config = cfg
	return cfg, nil
}

// ConfigExists checks if a config file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return err == nil
}

// ConfigFilePath returns the path of the HCL file inside the config directory
func (c *Configuration) ConfigFilePath() string {
	return filepath.Join(c.ConfigPath, ConfigFileName)
}

func (c *Configuration) SocketPath() string {
	return filepath.Join(c.ConfigPath, SocketName)
}

func (c *Configuration) PIDFilePath() string {
	return filepath.Join(c.ConfigPath, PidFileName)
}

func (c *Configuration) DatabasePath() string {
	return filepath.Join(c.ConfigPath, DatabaseName)
}
