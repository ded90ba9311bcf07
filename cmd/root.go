// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	// Version of this software - filled in by -ldflags at build time.
	Version string
	// BuildTime of this software - filled in by -ldflags at build time.
	BuildTime string
)

func setupVersionBuild() {
	if Version == "" {
		Version = "v0.0.0"
	}
	if BuildTime == "" {
		BuildTime = "not recorded"
	}
}

var subcommandFns = map[string]func(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command{}

// EnvPrefix prefixes the environment variables read for configuration.
const EnvPrefix = "OSO"

// NewRootCommand reads the map of subcommandFns and creates a top level cobra
// command with each of them as subcommands.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	setupVersionBuild()
	rc := &cobra.Command{
		Use:   "oso-collect",
		Short: "oso-collect - periodic collectors for the open source dependency graph",
		Long: `Collects relationships between tracked open source artifacts,
computing them in a warehouse and recording them as edges in a store.

Configuration is read from flags, then OSO_* environment variables (a .env
file in the working directory is loaded first), then the TOML file named by
--config.

Version: ` + Version + `
Build Time: ` + BuildTime + "\n",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadDotEnv(".env"); err != nil {
				return err
			}
			v := viper.New()
			return setAllConfig(v, cmd.Flags(), EnvPrefix)
		},
	}
	rc.PersistentFlags().StringP("config", "c", "", "Configuration file to read from.")
	for _, subcomFn := range subcommandFns {
		rc.AddCommand(subcomFn(stdin, stdout, stderr))
	}
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// loadDotEnv sets environment variables from name if it exists. Variables
// which are already set win.
func loadDotEnv(name string) error {
	if _, err := os.Stat(name); os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(godotenv.Load(name), "loading %s", name)
}

// setAllConfig fills every flag in flags which was not set on the command
// line, first from environment variables and then from the config file named
// by the "config" flag. Flags keep their defaults when neither has a value.
//
// Environment variables are the upper-cased flag names with dashes replaced
// by underscores, prefixed with envPrefix and an underscore, e.g.
// OSO_BATCH_SIZE. The config file is TOML unless its extension names another
// format viper understands.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet, envPrefix string) error {
	if err := v.BindPFlags(flags); err != nil {
		return errors.Wrap(err, "binding flags")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if c := v.GetString("config"); c != "" {
		v.SetConfigFile(c)
		switch strings.TrimPrefix(strings.ToLower(filepath.Ext(c)), ".") {
		case "json", "yaml", "yml", "hcl", "env", "properties", "ini":
		default:
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %v", c, err)
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		// Flags win. Setting a changed slice flag again would also append to
		// it rather than replace it.
		if flagErr != nil || f.Changed {
			return
		}
		flagErr = errors.Wrapf(f.Value.Set(configValue(v, f)), "setting %s", f.Name)
	})
	return flagErr
}

// configValue returns the string form of the value viper holds for f. Slices
// read from a config file are real slices, which GetString renders as "".
func configValue(v *viper.Viper, f *pflag.Flag) string {
	switch f.Value.Type() {
	case "stringSlice", "stringArray":
		return strings.Join(v.GetStringSlice(f.Name), ",")
	}
	return v.GetString(f.Name)
}
