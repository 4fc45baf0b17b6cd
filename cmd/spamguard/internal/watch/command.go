package watch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/whisper/spamguard/cmd/spamguard/internal"
	"github.com/whisper/spamguard/internal/catalog"
	"github.com/whisper/spamguard/internal/command"
	"github.com/whisper/spamguard/internal/messaging"
	"github.com/whisper/spamguard/internal/moderation"
)

func NewWatchCommand() *cobra.Command {
	var url string
	var catalogOnly bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream moderation and keyword events from NATS",
		Args:  cobra.NoArgs,
		Example: `  spamguard watch
  spamguard watch --nats nats://nats:4222 --catalog-only`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if url == "" {
				cfg, err := internal.LoadConfig()
				if err != nil {
					return err
				}
				url = cfg.NATSURL
			}
			if url == "" {
				return errors.New("no NATS server configured (set NATS_URL or --nats)")
			}

			logger := logrus.New()
			logger.SetOutput(cmd.ErrOrStderr())
			logger.SetLevel(logrus.WarnLevel)

			natsCfg := messaging.DefaultNATSConfig()
			natsCfg.URL = url
			natsCfg.Name = "spamguard-watch"
			client, err := messaging.NewNATSClient(natsCfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			p := &printer{out: cmd.OutOrStdout()}
			if err := client.Subscribe(messaging.SubjectCatalogUpdated, p.handle); err != nil {
				return err
			}
			if !catalogOnly {
				if err := client.Subscribe(messaging.SubjectFlagged+".>", p.handle); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "nats", "", "NATS server URL (default: NATS_URL)")
	cmd.Flags().BoolVar(&catalogOnly, "catalog-only", false, "Only show keyword changes")
	return cmd
}

// printer renders events one per line. Handlers run on NATS goroutines.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) handle(subject string, data []byte) {
	line := Format(subject, data)
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

// Format renders one event. Undecodable payloads are printed raw.
func Format(subject string, data []byte) string {
	if subject == messaging.SubjectCatalogUpdated {
		var ch catalog.Change
		if err := json.Unmarshal(data, &ch); err != nil {
			return fmt.Sprintf("%s %s", subject, data)
		}
		return fmt.Sprintf("[catalog v%d] %s %q (%s)", ch.Version, ch.Op, ch.Keyword, command.DisplayName(ch.Category))
	}

	var ev moderation.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Sprintf("%s %s", subject, data)
	}
	status := "deleted"
	if !ev.Deleted {
		status = "delete failed"
	}
	if !ev.Notified {
		status += ", no notice"
	}
	return fmt.Sprintf("[chat %d] message %d from %d matched %q: %s",
		ev.ChatID, ev.MessageID, ev.SenderID, ev.Term, status)
}
