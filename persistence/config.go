package persistence

import (
	"fmt"
	"time"

	"github.com/poseidon/poseidon/config"
)

// Config is everything the daemon reads from the configuration
// collaborator on start, per spec.md §6 plus the two optional spool
// keys from SPEC_FULL.md §4.2.
type Config struct {
	Server          string        `config:"database_server" validate:"required"`
	Username        string        `config:"database_username"`
	Password        string        `config:"database_password"`
	Name            string        `config:"database_name" validate:"required"`
	SaveDelay       time.Duration `config:"database_save_delay" validate:"gte=0"`
	MaxReconnDelay  time.Duration `config:"database_max_reconn_delay" validate:"gt=0"`
	SpoolPath       string        `config:"database_spool_path"`
	BackupBucket    string        `config:"database_backup_bucket"`
}

// LoadConfig reads a Config from m, applying the same defaults a
// fresh install would need to get a local MySQL instance talking
// before any operator tuning.
func LoadConfig(m *config.Manager) Config {
	return Config{
		Server:         config.Get(m, "database_server", "tcp(127.0.0.1:3306)"),
		Username:       config.Get(m, "database_username", "poseidon"),
		Password:       config.Get(m, "database_password", ""),
		Name:           config.Get(m, "database_name", "poseidon"),
		SaveDelay:      config.Get(m, "database_save_delay", 200*time.Millisecond),
		MaxReconnDelay: config.Get(m, "database_max_reconn_delay", 30*time.Second),
		SpoolPath:      config.Get(m, "database_spool_path", ""),
		BackupBucket:   config.Get(m, "database_backup_bucket", ""),
	}
}

// dsn builds a go-sql-driver/mysql data source name from the config.
func (c Config) dsn() string {
	return fmt.Sprintf("%s:%s@%s/%s?parseTime=true", c.Username, c.Password, c.Server, c.Name)
}
