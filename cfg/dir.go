package cfg

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/tcptap/tcptap/printer"
)

var (
	cfgDir string
)

func initCfgDir() {
	home, err := homedir.Dir()
	if err != nil {
		printer.Stderr.Warningf("Failed to find $HOME, defaulting to '.', error: %v\n", err)
		home = "."
	}
	cfgDir = filepath.Join(home, ".tcptap")

	if stat, err := os.Stat(cfgDir); os.IsNotExist(err) {
		return
	} else if err != nil {
		printer.Stderr.Errorf("Failed to stat %s: %v\n", cfgDir, err)
		os.Exit(1)
	} else if !stat.IsDir() {
		printer.Stderr.Errorf("%s is not a directory, please remove.\n", cfgDir)
		os.Exit(1)
	}
}

// LoadDefaults reads optional defaults (interface, debug-level) from
// ~/.tcptap/config.yaml into viper. Missing file is not an error.
func LoadDefaults() {
	initCfgDir()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(cfgDir)
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound {
			return
		}
		if os.IsNotExist(err) {
			return
		}
		printer.Stderr.Warningf("Ignoring unreadable config in %s: %v\n", cfgDir, err)
	}
}
