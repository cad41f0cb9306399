package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	encini "github.com/go-viper/encoding/ini"
	"github.com/spf13/viper"

	apperrors "github.com/lupppig/pgpair/internal/errors"
)

// Conn describes how to reach the database server. It is resolved once
// per invocation and never persisted.
type Conn struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Params is the fully resolved configuration for one invocation.
// Precedence: command-line flag, then PGPAIR_* environment, then the
// backup config [backup] section, then the server config [options]
// section, then built-in defaults.
type Params struct {
	Conn             Conn
	DataDir          string
	FilestoreRoot    string
	BackupDir        string
	LogDir           string
	RetentionDays    int
	LogRetentionDays int
	Compression      string
	Instances        []string
}

// Flags carries command-line overrides. Zero values mean "not set";
// RetentionDays and LogRetentionDays use -1 because 0 is meaningful
// (it disables the sweep).
type Flags struct {
	ServerConfig     string
	BackupConfig     string
	Host             string
	Port             int
	User             string
	Password         string
	FilestoreRoot    string
	BackupDir        string
	LogDir           string
	RetentionDays    int
	LogRetentionDays int
	Compression      string
}

// NewFlags returns a Flags with the unset sentinels in place.
func NewFlags() Flags {
	return Flags{RetentionDays: -1, LogRetentionDays: -1}
}

const (
	defaultHost             = "localhost"
	defaultPort             = 5432
	defaultUser             = "postgres"
	defaultRetentionDays    = 7
	defaultLogRetentionDays = 30
	defaultCompression      = "zstd"
)

// Loader reads the two INI layers and resolves them against flags and
// environment. Keep one Loader per invocation; the schedule daemon
// re-resolves through it when the backup config changes on disk.
type Loader struct {
	flags   Flags
	backupV *viper.Viper
	serverV *viper.Viper
}

func NewLoader(flags Flags) *Loader {
	return &Loader{flags: flags}
}

// Load (re)reads the config files and resolves Params.
func (l *Loader) Load() (Params, error) {
	var err error
	l.serverV, err = readLayer(l.flags.ServerConfig, "server.conf")
	if err != nil {
		return Params{}, err
	}
	l.backupV, err = readLayer(l.flags.BackupConfig, "backup.conf")
	if err != nil {
		return Params{}, err
	}
	return l.resolve()
}

// Watch invokes onChange whenever the backup config file is rewritten.
// Load must have been called first; without a backup config file on
// disk there is nothing to watch.
func (l *Loader) Watch(onChange func()) {
	if l.backupV == nil || l.backupV.ConfigFileUsed() == "" {
		return
	}
	l.backupV.OnConfigChange(func(e fsnotify.Event) {
		onChange()
	})
	l.backupV.WatchConfig()
}

// readLayer builds a viper instance with the INI codec bound. An
// explicit path must exist; otherwise the default locations are probed
// and a missing file just leaves the layer empty (environment still
// applies through it).
func readLayer(path, defaultName string) (*viper.Viper, error) {
	registry := viper.NewCodecRegistry()
	if err := registry.RegisterCodec("ini", encini.Codec{}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeInternal, "registering ini codec", "")
	}

	v := viper.NewWithOptions(viper.WithCodecRegistry(registry))
	v.SetConfigType("ini")
	v.SetEnvPrefix("PGPAIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = probeDefault(defaultName)
	} else if _, err := os.Stat(path); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConfig,
			fmt.Sprintf("config file %s not readable", path),
			"Check the path passed via --server-config / --backup-config.")
	}
	if path == "" {
		return v, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConfig,
			fmt.Sprintf("parsing config file %s", path),
			"The file must be INI formatted.")
	}
	return v, nil
}

func probeDefault(name string) string {
	candidates := []string{name}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".pgpair", name))
	}
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			return c
		}
	}
	return ""
}

func (l *Loader) resolve() (Params, error) {
	var p Params

	// Unsectioned lookups on the backup layer only ever hit the
	// environment (PGPAIR_DB_HOST and friends); file keys live under
	// their section.
	env := func(key string) string { return l.backupV.GetString(key) }
	backup := func(key string) string { return l.backupV.GetString("backup." + key) }
	server := func(key string) string { return l.serverV.GetString("options." + key) }

	p.Conn.Host = first(l.flags.Host, env("db_host"), server("db_host"), defaultHost)
	p.Conn.User = first(l.flags.User, env("db_user"), server("db_user"), defaultUser)
	p.Conn.Password = first(l.flags.Password, env("db_password"), server("db_password"))

	port, err := resolveInt("db_port", l.flags.Port, 0, defaultPort, env("db_port"), server("db_port"))
	if err != nil {
		return Params{}, err
	}
	p.Conn.Port = port

	dataDir, err := expandHome(first(server("data_dir"), "~/.local/share/pgpair"))
	if err != nil {
		return Params{}, err
	}
	p.DataDir = dataDir

	p.FilestoreRoot, err = expandHome(first(l.flags.FilestoreRoot, env("filestore_root"), filepath.Join(dataDir, "filestore")))
	if err != nil {
		return Params{}, err
	}
	p.BackupDir, err = expandHome(first(l.flags.BackupDir, env("backup_dir"), backup("backup_dir"), filepath.Join(dataDir, "backups")))
	if err != nil {
		return Params{}, err
	}
	p.LogDir, err = expandHome(first(l.flags.LogDir, env("log_dir"), backup("log_dir"), filepath.Join(dataDir, "logs")))
	if err != nil {
		return Params{}, err
	}

	p.RetentionDays, err = resolveInt("backup_retention_days",
		l.flags.RetentionDays, -1, defaultRetentionDays, env("retention_days"), backup("backup_retention_days"))
	if err != nil {
		return Params{}, err
	}
	p.LogRetentionDays, err = resolveInt("log_retention_days",
		l.flags.LogRetentionDays, -1, defaultLogRetentionDays, env("log_retention_days"), backup("log_retention_days"))
	if err != nil {
		return Params{}, err
	}

	p.Compression = first(l.flags.Compression, env("compression"), backup("compression"), defaultCompression)

	p.Instances = splitCSV(first(backup("backup_db_names"), server("db_name")))

	return p, nil
}

// first returns the first non-empty value.
func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveInt applies precedence over an int-valued key. flagVal wins
// unless it equals unset; layers win in order when non-empty.
func resolveInt(key string, flagVal, unset, def int, layers ...string) (int, error) {
	if flagVal != unset {
		return flagVal, nil
	}
	for _, v := range layers {
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, apperrors.Wrap(err, apperrors.TypeConfig,
				fmt.Sprintf("invalid value for %s: %q", key, v),
				"The value must be an integer.")
		}
		return n, nil
	}
	return def, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.TypeConfig, "resolving home directory", "")
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
