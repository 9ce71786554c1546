package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "speaker-diarization",
		Short:         "Speaker diarization sidecar",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Speaker diarization service failed")
		os.Exit(1)
	}
}
