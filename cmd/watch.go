package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/groupmsg/internal/application/usecases"
	"github.com/example/groupmsg/internal/watch"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	var (
		dir      string
		pattern  string
		settle   time.Duration
		existing bool
		regions  regionFlags
		tmpl     templateFlags
		flags    sendFlags
	)
	c := &cobra.Command{
		Use:   "watch",
		Short: "Send the template for every screenshot dropped into a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			template, err := tmpl.load()
			if err != nil {
				return err
			}
			u, release, err := flags.campaign(cmd.Context(), cfg, logger, regions)
			if err != nil {
				return err
			}
			defer release()

			// one run at a time: deliveries stay sequential across files
			var mu sync.Mutex
			w := &watch.Watcher{
				Dir:      dir,
				Pattern:  pattern,
				Settle:   settle,
				Existing: existing,
				Logger:   logger,
				Handle: func(ctx context.Context, path string) error {
					mu.Lock()
					defer mu.Unlock()
					res, err := u.Execute(ctx, usecases.Source{ImagePath: path}, template)
					printSummary(cmd.OutOrStdout(), res)
					return err
				},
			}
			return w.Run(cmd.Context())
		},
	}
	c.Flags().StringVar(&dir, "dir", "inbox", "directory to watch")
	c.Flags().StringVar(&pattern, "pattern", watch.DefaultPattern, "file name pattern (doublestar syntax)")
	c.Flags().DurationVar(&settle, "settle", 2*time.Second, "how long a file must be unchanged before it is processed")
	c.Flags().BoolVar(&existing, "existing", false, "also process images already in the directory")
	regions.register(c)
	tmpl.register(c)
	flags.register(c)
	return c
}
