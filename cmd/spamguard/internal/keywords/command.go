package keywords

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/whisper/spamguard/cmd/spamguard/internal"
	"github.com/whisper/spamguard/internal/catalog"
	"github.com/whisper/spamguard/internal/command"
)

type options struct {
	file string
}

func NewKeywordsCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:     "keywords",
		Aliases: []string{"kw"},
		Short:   "Inspect and edit the keyword file offline",
		Example: `  spamguard keywords list
  spamguard keywords add 上分
  spamguard keywords add "free pills" --category pharma
  spamguard keywords delete 上分
  spamguard keywords export --format yaml`,
	}
	cmd.PersistentFlags().StringVar(&opts.file, "file", "",
		"Keyword file path (default: KEYWORDS_FILE)")

	cmd.AddCommand(
		newListCommand(&opts),
		newStatsCommand(&opts),
		newAddCommand(&opts),
		newDeleteCommand(&opts),
		newExportCommand(&opts),
	)
	return cmd
}

func (o *options) open(cmd *cobra.Command) (*catalog.Catalog, error) {
	path := o.file
	if path == "" {
		cfg, err := internal.LoadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.KeywordsFile
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(logrus.WarnLevel)

	store := catalog.NewFileStore(path)
	return catalog.New(store, catalog.LoadOrDefault(store, logger)), nil
}

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List keywords by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), command.RenderList(c.Snapshot()))
			return nil
		},
	}
}

func newStatsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show keyword counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			view := command.StatsView{Snapshot: c.Snapshot(), RemovedLastDay: -1}
			fmt.Fprintln(cmd.OutOrStdout(), command.RenderStats(view))
			return nil
		},
	}
}

func newAddCommand(opts *options) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "add <keyword>",
		Short: "Add a keyword",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			keyword := strings.Join(args, " ")
			added, err := c.Add(keyword, category)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "Keyword already exists: %s\n", keyword)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added keyword: %s\n", keyword)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", catalog.CategoryCustom, "Target category")
	return cmd
}

func newDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <keyword>",
		Aliases: []string{"rm"},
		Short:   "Delete a keyword from the first category holding it",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			keyword := strings.Join(args, " ")
			removed, err := c.Remove(keyword)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("keyword not found: %s", keyword)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted keyword: %s\n", keyword)
			return nil
		},
	}
}

func newExportCommand(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the catalog as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			cats := c.Snapshot().Categories

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetEscapeHTML(false)
				enc.SetIndent("", "  ")
				return enc.Encode(cats)
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(cats); err != nil {
					return err
				}
				return enc.Close()
			default:
				return fmt.Errorf("unknown format %q (want json or yaml)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	return cmd
}
