// cmd.go - Haupt-CLI fuer Lokal
// Hauptfunktionen: NewCLI, appendEnvDocs, versionHandler
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/lokal-ai/lokal/envconfig"
	"github.com/lokal-ai/lokal/version"
)

// appendEnvDocs haengt die Dokumentation der Umgebungsvariablen an die
// Usage-Ausgabe eines Commands an
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// versionHandler gibt die Build-Version aus
func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Printf("lokal version is %s\n", version.Version)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "lokal",
		Short:         "On-device dialog engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	serveCmd := newServeCmd()

	envVars := envconfig.AsMap()
	appendEnvDocs(serveCmd, []envconfig.EnvVar{
		envVars["LOKAL_DEBUG"],
		envVars["LOKAL_HOST"],
		envVars["LOKAL_CONTEXT_LENGTH"],
		envVars["LOKAL_MAX_SEQUENCES"],
		envVars["LOKAL_CROP_LABEL"],
		envVars["LOKAL_ENCODING"],
		envVars["LOKAL_ORIGINS"],
	})

	rootCmd.AddCommand(serveCmd)

	return rootCmd
}
