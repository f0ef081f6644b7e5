package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Env holds the environment variables diego reads. QT6_LIB_PATH and
// DIE_DB_PATH keep their historical names; the rest use the DIEGO_ prefix.
type Env struct {
	QtLibPath string
	Target    string
	BuildType string
	StateDir  string
	DBPath    string
	LogLevel  string
	LogFormat string
}

// LoadEnv reads Env through a private viper instance.
func LoadEnv() Env {
	v := newEnvViper()
	return Env{
		QtLibPath: v.GetString("qt6_lib_path"),
		Target:    v.GetString("target"),
		BuildType: v.GetString("build_type"),
		StateDir:  v.GetString("state_dir"),
		DBPath:    v.GetString("die_db_path"),
		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),
	}
}

func newEnvViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("DIEGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("qt6_lib_path", "QT6_LIB_PATH")
	_ = v.BindEnv("die_db_path", "DIE_DB_PATH", "DIEGO_DB_PATH")
	return v
}
