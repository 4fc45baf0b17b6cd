// Command spamguard is a Telegram group anti-spam bot. It deletes messages
// that contain blocked keywords, posts a short-lived notice, and lets group
// administrators maintain the keyword list from chat.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whisper/spamguard/cmd/spamguard/internal"
	"github.com/whisper/spamguard/cmd/spamguard/internal/keywords"
	"github.com/whisper/spamguard/cmd/spamguard/internal/serve"
	"github.com/whisper/spamguard/cmd/spamguard/internal/version"
	"github.com/whisper/spamguard/cmd/spamguard/internal/watch"
)

func NewSpamguardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "spamguard",
		Short:        fmt.Sprintf("spamguard %s - keyword anti-spam bot for Telegram groups", internal.FormatVersion()),
		Example:      "spamguard serve",
		SilenceUsage: true,
	}

	cmd.AddCommand(
		serve.NewServeCommand(),
		keywords.NewKeywordsCommand(),
		watch.NewWatchCommand(),
		version.NewVersionCommand(),
	)
	return cmd
}

func main() {
	if err := NewSpamguardCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
