package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/yoockh/meetsense/config"
)

type Dependencies struct {
	Config *config.Config
	Logger *logrus.Logger
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meetsense",
		Short:         "Meeting transcript analytics",
		Long:          "Replay recorded recognition streams into session reports, export stored sessions, and check the environment.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewReplayCmd(deps))
	rootCmd.AddCommand(NewExportCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
