// Package config provides host file parsing.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fgeck/hotbackup/internal/models"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Setting keys shared between the host file and command-line flags.
const (
	KeyBackupDir = "backup_dir"
	KeyOwner     = "owner"
	KeyTimeout   = "timeout"
	KeyKeepGoing = "keep_going"
)

// Defaults.
const (
	DefaultTimeout          = 6 * time.Hour
	DefaultCompressionLevel = 6
	defaultMySQLPort        = 3306
	defaultPostgresPort     = 5432
	defaultSSHPort          = 22
)

// hostEntry mirrors one element of the host list in the file.
type hostEntry struct {
	Name     string    `yaml:"name" mapstructure:"name"`
	User     string    `yaml:"user" mapstructure:"user"`
	Password string    `yaml:"password" mapstructure:"password"`
	Host     string    `yaml:"host" mapstructure:"host"`
	Port     int       `yaml:"port" mapstructure:"port"`
	Datadir  string    `yaml:"datadir" mapstructure:"datadir"`
	Engine   string    `yaml:"engine" mapstructure:"engine"`
	Binary   string    `yaml:"binary" mapstructure:"binary"`
	SSH      *sshEntry `yaml:"ssh" mapstructure:"ssh"`
	WOL      *wolEntry `yaml:"wol" mapstructure:"wol"`
}

type sshEntry struct {
	Host       string `yaml:"host" mapstructure:"host"`
	Port       int    `yaml:"port" mapstructure:"port"`
	Username   string `yaml:"username" mapstructure:"username"`
	KeyPath    string `yaml:"key_path" mapstructure:"key_path"`
	KnownHosts string `yaml:"known_hosts" mapstructure:"known_hosts"`
}

type wolEntry struct {
	MACAddress    string `yaml:"mac_address" mapstructure:"mac_address"`
	BroadcastIP   string `yaml:"broadcast_ip" mapstructure:"broadcast_ip"`
	Timeout       string `yaml:"timeout" mapstructure:"timeout"`
	PollInterval  string `yaml:"poll_interval" mapstructure:"poll_interval"`
	StabilizeWait string `yaml:"stabilize_wait" mapstructure:"stabilize_wait"`
}

// Parser handles host file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault("compression.level", DefaultCompressionLevel)
	return &Parser{v: v}
}

// BindFlags lets command-line flags override settings from the file.
// Flags are looked up by setting key; missing flags are ignored.
func (p *Parser) BindFlags(fs *pflag.FlagSet) error {
	for _, key := range []string{KeyBackupDir, KeyOwner, KeyTimeout, KeyKeepGoing} {
		flag := fs.Lookup(flagName(key))
		if flag == nil {
			continue
		}
		if err := p.v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag.Name, err)
		}
	}
	return nil
}

// flagName maps a setting key to its command-line flag.
func flagName(key string) string {
	switch key {
	case KeyBackupDir:
		return "backupdir"
	case KeyOwner:
		return "user"
	default:
		return strings.ReplaceAll(key, "_", "-")
	}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.RunConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.load(data)
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.RunConfig, error) {
	return p.load([]byte(content))
}

// load accepts either a bare YAML sequence of hosts or a mapping with a hosts key.
func (p *Parser) load(data []byte) (*models.RunConfig, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	var entries []hostEntry
	if len(root.Content) > 0 && root.Content[0].Kind == yaml.SequenceNode {
		if err := root.Content[0].Decode(&entries); err != nil {
			return nil, fmt.Errorf("decoding host list: %w", err)
		}
	} else {
		if err := p.v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := p.v.UnmarshalKey("hosts", &entries); err != nil {
			return nil, fmt.Errorf("decoding hosts: %w", err)
		}
	}

	return p.parse(entries)
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse(entries []hostEntry) (*models.RunConfig, error) {
	cfg := &models.RunConfig{
		BackupDir: p.v.GetString(KeyBackupDir),
		Owner:     p.v.GetString(KeyOwner),
		Timeout:   p.v.GetDuration(KeyTimeout),
		KeepGoing: p.v.GetBool(KeyKeepGoing),
		Compression: models.CompressionConfig{
			Command: p.v.GetString("compression.command"),
			Args:    p.v.GetStringSlice("compression.args"),
			Level:   p.v.GetInt("compression.level"),
		},
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative (0 disables it)")
	}
	if cfg.Compression.Level < 1 || cfg.Compression.Level > 9 {
		return nil, fmt.Errorf("compression.level must be between 1 and 9")
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("at least one host is required")
	}

	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		host, err := p.parseHost(e)
		if err != nil {
			return nil, fmt.Errorf("hosts[%d]: %w", i, err)
		}
		if seen[host.Name] {
			return nil, fmt.Errorf("hosts[%d]: duplicate name %q", i, host.Name)
		}
		seen[host.Name] = true
		cfg.Hosts = append(cfg.Hosts, host)
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

//nolint:gocognit,gocyclo // per-host validation with defaults
func (p *Parser) parseHost(e hostEntry) (models.HostRecord, error) {
	host := models.HostRecord{
		Name:     e.Name,
		User:     e.User,
		Password: p.expandEnv(e.Password),
		Host:     e.Host,
		Port:     e.Port,
		Datadir:  e.Datadir,
		Engine:   e.Engine,
		Binary:   e.Binary,
	}

	if host.Name == "" {
		return host, fmt.Errorf("name is required")
	}
	if strings.ContainsAny(host.Name, `/\`) || host.Name == "." || host.Name == ".." {
		return host, fmt.Errorf("name %q must be usable as a file name", host.Name)
	}
	if host.Host == "" {
		return host, fmt.Errorf("%s: host is required", host.Name)
	}
	if host.User == "" {
		return host, fmt.Errorf("%s: user is required", host.Name)
	}

	if host.Engine == "" {
		host.Engine = models.EngineXtrabackup
	}
	switch host.Engine {
	case models.EngineXtrabackup:
		if host.Port == 0 {
			host.Port = defaultMySQLPort
		}
		if host.Datadir == "" {
			return host, fmt.Errorf("%s: datadir is required for %s", host.Name, host.Engine)
		}
	case models.EnginePgBasebackup:
		if host.Port == 0 {
			host.Port = defaultPostgresPort
		}
	default:
		return host, fmt.Errorf("%s: engine must be one of: %s, %s",
			host.Name, models.EngineXtrabackup, models.EnginePgBasebackup)
	}
	if host.Port < 1 || host.Port > 65535 {
		return host, fmt.Errorf("%s: port %d out of range", host.Name, host.Port)
	}

	if e.SSH != nil {
		host.SSH = &models.SSHConfig{
			Host:           e.SSH.Host,
			Port:           e.SSH.Port,
			Username:       e.SSH.Username,
			KeyPath:        p.expandEnv(e.SSH.KeyPath),
			KnownHostsFile: p.expandEnv(e.SSH.KnownHosts),
		}
		if host.SSH.Host == "" {
			host.SSH.Host = host.Host
		}
		if host.SSH.Port == 0 {
			host.SSH.Port = defaultSSHPort
		}
		if host.SSH.Username == "" {
			host.SSH.Username = "root"
		}
		if host.SSH.KeyPath == "" {
			return host, fmt.Errorf("%s: ssh.key_path is required when ssh is configured", host.Name)
		}
	}

	if e.WOL != nil {
		wol, err := parseWOL(*e.WOL)
		if err != nil {
			return host, fmt.Errorf("%s: %w", host.Name, err)
		}
		host.WOL = wol
	}

	return host, nil
}

func parseWOL(e wolEntry) (*models.WOLConfig, error) {
	cfg := &models.WOLConfig{
		MACAddress:  e.MACAddress,
		BroadcastIP: e.BroadcastIP,
	}

	if cfg.MACAddress == "" {
		return nil, fmt.Errorf("wol.mac_address is required when wol is configured")
	}

	durations := []struct {
		name  string
		raw   string
		dst   *time.Duration
		deflt time.Duration
	}{
		{"wol.timeout", e.Timeout, &cfg.Timeout, 5 * time.Minute},
		{"wol.poll_interval", e.PollInterval, &cfg.PollInterval, 10 * time.Second},
		{"wol.stabilize_wait", e.StabilizeWait, &cfg.StabilizeWait, 10 * time.Second},
	}
	for _, d := range durations {
		if d.raw == "" {
			*d.dst = d.deflt
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	if cfg.BroadcastIP == "" {
		cfg.BroadcastIP = "255.255.255.255"
	}

	return cfg, nil
}

// envRef matches ${VAR}. A bare $ is literal so credentials like pa$$w0rd survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv expands environment variables in the format ${VAR}. References to
// unset variables are left as written.
func (p *Parser) expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if val, ok := os.LookupEnv(ref[2 : len(ref)-1]); ok {
			return val
		}
		return ref
	})
}

// DefaultPath returns name resolved next to the running program.
func DefaultPath(name string) string {
	return filepath.Join(filepath.Dir(os.Args[0]), name)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.RunConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if len(cfg.Hosts) == 0 {
		return fmt.Errorf("at least one host is required")
	}

	if cfg.BackupDir == "" {
		return fmt.Errorf("backup directory is required")
	}

	return nil
}
