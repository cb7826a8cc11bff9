// Command todoctl maintains a todos directory from the terminal.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"mdtodo/internal/config"
	"mdtodo/internal/logging"
	"mdtodo/internal/migrate"
	"mdtodo/internal/repo"
	"mdtodo/internal/service"
)

var Version = "dev"

type cli struct {
	fs      afero.Fs
	dir     string
	verbose bool
	logger  *log.Logger
}

func main() {
	if err := newRootCmd(afero.NewOsFs()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(fsys afero.Fs) *cobra.Command {
	c := &cli{fs: fsys}

	root := &cobra.Command{
		Use:           "todoctl",
		Short:         "Maintain a markdown todos directory",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if c.verbose {
				level = "debug"
			}
			c.logger = logging.NewWithWriter(cmd.ErrOrStderr(), level, "text")
			if c.dir != "" {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.dir = cfg.Store.Dir
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.dir, "dir", "d", "", "todos directory (default: TODOS_DIR or ./todos)")
	root.PersistentFlags().BoolVar(&c.verbose, "verbose", false, "debug logging")

	root.AddCommand(c.migrateCmd())
	root.AddCommand(c.cleanCmd())
	root.AddCommand(c.backupCmd())
	root.AddCommand(c.restoreCmd())
	root.AddCommand(c.listCmd())
	root.AddCommand(c.showCmd())
	return root
}

func (c *cli) service() (*service.TodoService, error) {
	r, err := repo.NewFileTodoRepo(c.fs, c.dir, repo.WithLogger(c.logger.WithPrefix("store")))
	if err != nil {
		return nil, err
	}
	m := migrate.New(c.fs, c.dir, migrate.WithLogger(c.logger.WithPrefix("migrate")))
	return service.NewTodoService(r, nil,
		service.WithLogger(c.logger),
		service.WithMigrator(m),
	), nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
