package contentpack

import "github.com/goliatone/go-contentpack/internal/runtimeconfig"

var (
	ErrConfigPathRequired      = runtimeconfig.ErrConfigPathRequired
	ErrWorkersInvalid          = runtimeconfig.ErrWorkersInvalid
	ErrTimeoutInvalid          = runtimeconfig.ErrTimeoutInvalid
	ErrRemoteIncomplete        = runtimeconfig.ErrRemoteIncomplete
	ErrLoggingProviderRequired = runtimeconfig.ErrLoggingProviderRequired
	ErrLoggingProviderUnknown  = runtimeconfig.ErrLoggingProviderUnknown
	ErrLoggingLevelInvalid     = runtimeconfig.ErrLoggingLevelInvalid
	ErrLoggingFormatInvalid    = runtimeconfig.ErrLoggingFormatInvalid
)

type (
	Config         = runtimeconfig.Config
	LinkCardConfig = runtimeconfig.LinkCardConfig
	RemoteConfig   = runtimeconfig.RemoteConfig
	LoggingConfig  = runtimeconfig.LoggingConfig
)

func DefaultConfig() Config {
	return runtimeconfig.DefaultConfig()
}
