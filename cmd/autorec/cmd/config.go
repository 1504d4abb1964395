package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autorec/autorec/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for inspecting autorec configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML format: defaults merged with
the config file and environment variables. Redirect the output to create
a configuration template:

  autorec config dump > autorec.yaml

Environment variables use the AUTOREC_ prefix with underscores for
nesting. Example: recording.output_dir -> AUTOREC_RECORDING_OUTPUT_DIR`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags,
// rendering durations and byte sizes in their config-file spelling.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		key := typ.Field(i).Tag.Get("mapstructure")
		if key == "" {
			key = typ.Field(i).Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(_ *cobra.Command, _ []string) error {
	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# autorec configuration")
	fmt.Println("#")
	fmt.Println("# Duration format: 5s, 1m, 24h, 30d")
	fmt.Println("# Size format: 100MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides use the AUTOREC_ prefix:")
	fmt.Println("#   AUTOREC_RECORDING_OUTPUT_DIR, AUTOREC_MONITOR_POLL_INTERVAL,")
	fmt.Println("#   AUTOREC_HTTP_PORT, AUTOREC_LOGGING_LEVEL, etc.")
	fmt.Println("")
	fmt.Print(string(yamlData))
	return nil
}
