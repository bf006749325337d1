package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/LiuPacific/geoserver/internal/config"
)

// Seteado por -ldflags en el build de release.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// globalFlags son comunes a serve y emit.
type globalFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	gf := &globalFlags{}
	root := &cobra.Command{
		Use:           "geocluster",
		Short:         "Sincronización de catálogo entre nodos del cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.configPath, "config", os.Getenv("GEOCLUSTER_CONFIG"), "Ruta al YAML de configuración (env GEOCLUSTER_CONFIG)")
	root.PersistentFlags().StringVar(&gf.envFile, "env-file", ".env", "Archivo .env a cargar antes de leer la configuración")

	root.AddCommand(newServeCmd(gf), newEmitCmd(gf), &cobra.Command{
		Use:   "version",
		Short: "Imprime la versión",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

// load carga .env (si existe) y la configuración.
func (gf *globalFlags) load() (*config.Config, error) {
	if gf.envFile != "" {
		if err := godotenv.Load(gf.envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("env file %s: %w", gf.envFile, err)
		}
	}
	return config.Load(gf.configPath)
}
