package featureflag

import (
	"strings"

	"github.com/spf13/viper"
)

var Version = ""

func IsDev() bool {
	if viper.IsSet("feature.dev") {
		return viper.GetBool("feature.dev")
	}
	return strings.HasPrefix(Version, "dev") || Version == ""
}

func Debug() bool {
	return viper.GetBool("feature.debug")
}

// RetryAppExitCodes makes non-zero remote exit codes retryable by default.
// Transport failures always retry; this only widens the policy.
func RetryAppExitCodes() bool {
	return viper.GetBool("feature.retry_app_exit_codes")
}

func LoadFeatureFlags(path string) error {
	viper.SetConfigName("config")
	viper.AddConfigPath("/etc/hbd/")
	viper.AddConfigPath(path)
	viper.SetEnvPrefix("hbd")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig() // do not need to fail if can't find config file

	return nil
}
