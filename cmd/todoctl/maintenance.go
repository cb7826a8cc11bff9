package main

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"mdtodo/internal/ops"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Backfill titles and slugs, repair duplicate slugs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			rep, err := svc.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printf(out, "titles backfilled: %d\n", rep.TitlesBackfilled)
			printf(out, "slugs backfilled:  %d\n", rep.SlugsBackfilled)
			printf(out, "duplicates fixed:  %d\n", rep.DuplicatesFixed)
			for _, fe := range rep.Errors {
				printf(cmd.ErrOrStderr(), "%s: %s\n", fe.File, fe.Err)
			}
			return nil
		},
	}
}

func (c *cli) cleanCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete every todo in the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete todos without --yes")
			}
			n, err := ops.Clean(c.fs, c.dir)
			printf(cmd.OutOrStdout(), "removed %d files from %s\n", n, c.dir)
			return err
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func (c *cli) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup [archive]",
		Short: "Write the todos directory to a .tar.gz archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive := filepath.Join("backups", "todos-"+time.Now().UTC().Format("20060102T150405Z")+".tar.gz")
			if len(args) == 1 {
				archive = args[0]
			}
			n, err := ops.BackupFile(c.fs, c.dir, archive)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s (%d files)\n", archive, n)
			return nil
		},
	}
}

func (c *cli) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <archive>",
		Short: "Extract a backup archive into the todos directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := ops.RestoreFile(c.fs, args[0], c.dir)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "restored %d files into %s\n", n, c.dir)
			return nil
		},
	}
}
