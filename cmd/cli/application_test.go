package cli_test

import (
	"bytes"
	"testing"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/vigiar/autosync/cmd/cli"
)

const (
	embeddedDefaultLogLevelConstant  = "info"
	embeddedDefaultLogFormatConstant = "structured"
	embeddedDefaultRemoteConstant    = "origin"
	embeddedDefaultBranchConstant    = "main"
)

func decodeEmbeddedApplicationConfiguration(testInstance *testing.T) cli.ApplicationConfiguration {
	testInstance.Helper()

	configurationData, configurationType := cli.EmbeddedDefaultConfiguration()
	viperInstance := viper.New()
	viperInstance.SetConfigType(configurationType)

	readError := viperInstance.ReadConfig(bytes.NewReader(configurationData))
	require.NoError(testInstance, readError)

	var configuration cli.ApplicationConfiguration
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	unmarshalError := viperInstance.Unmarshal(&configuration, decodeHook)
	require.NoError(testInstance, unmarshalError)

	return configuration
}

func TestEmbeddedDefaultConfigurationProvidesCompleteDefaults(testInstance *testing.T) {
	configuration := decodeEmbeddedApplicationConfiguration(testInstance)

	require.Equal(testInstance, embeddedDefaultLogLevelConstant, configuration.Common.LogLevel)
	require.Equal(testInstance, embeddedDefaultLogFormatConstant, configuration.Common.LogFormat)
	require.Empty(testInstance, configuration.Common.LogFile)

	require.Empty(testInstance, configuration.Sync.Repository)
	require.Equal(testInstance, embeddedDefaultRemoteConstant, configuration.Sync.Remote)
	require.Equal(testInstance, embeddedDefaultBranchConstant, configuration.Sync.Branch)
	require.Empty(testInstance, configuration.Sync.Paths)

	require.Equal(testInstance, 30*time.Second, configuration.Watch.Interval)
	require.Equal(testInstance, 2*time.Second, configuration.Watch.Debounce)
}

func TestEmbeddedDefaultConfigurationReturnsDefensiveCopy(testInstance *testing.T) {
	firstCopy, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEmpty(testInstance, firstCopy)

	firstCopy[0] = '#'

	secondCopy, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEqual(testInstance, firstCopy[0], secondCopy[0])
}
