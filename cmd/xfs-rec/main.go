// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"git.lukeshu.com/xfs-progs-ng/lib/profile"
	"git.lukeshu.com/xfs-progs-ng/lib/repairconf"
	"git.lukeshu.com/xfs-progs-ng/lib/textui"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs"
)

type subcommand struct {
	cobra.Command
	RunE func(*xfs.FS, *repairconf.Config, *cobra.Command, []string) error
}

var inspectors, repairers []subcommand

func main() {
	logLevelFlag := textui.LogLevelFlag{
		Level: dlog.LogLevelInfo,
	}
	var devFlag string
	var configFlag string
	var profFlags profile.Flags

	argparser := &cobra.Command{
		Use:   "xfs-rec {[flags]|SUBCOMMAND}",
		Short: "Check and repair link counts on an XFS filesystem image",

		Args: cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE: cliutil.RunSubcommands,

		SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
		SilenceUsage:  true, // our FlagErrorFunc will handle it

		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
	flags := argparser.PersistentFlags()
	flags.Var(&logLevelFlag, "verbosity", "set the verbosity")
	flags.StringVar(&devFlag, "dev", "", "open the file `device` as the filesystem")
	if err := argparser.MarkPersistentFlagFilename("dev"); err != nil {
		panic(err)
	}
	if err := argparser.MarkPersistentFlagRequired("dev"); err != nil {
		panic(err)
	}
	flags.StringVar(&configFlag, "config", "", "read settings from `config.yaml` (or .toml)")
	if err := argparser.MarkPersistentFlagFilename("config", "yaml", "yml", "toml"); err != nil {
		panic(err)
	}
	flags.String("records", "", "load in-core inode records from the JSON file `records.json`")
	if err := argparser.MarkPersistentFlagFilename("records", "json"); err != nil {
		panic(err)
	}
	flags.BoolP("prefetch", "P", false, "walk allocation groups concurrently")
	flags.Int("workers", 0, "number of allocation groups to walk at once with --prefetch (default GOMAXPROCS)")
	flags.Duration("progress-interval", 0, "how often to log progress (default 1s)")
	flags.String("metrics-textfile", "", "write Prometheus metrics to `file.prom` when done")
	flags.Uint64("orphanage", 0, "inode number of lost+found, overriding the records file")
	profFlags.Register(flags, "profile.")

	openFlag := os.O_RDONLY

	argparserInspect := &cobra.Command{
		Use:   "inspect {[flags]|SUBCOMMAND}",
		Short: "Inspect (but don't modify) an XFS filesystem",

		Args: cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE: cliutil.RunSubcommands,
	}
	argparser.AddCommand(argparserInspect)

	argparserRepair := &cobra.Command{
		Use:   "repair {[flags]|SUBCOMMAND}",
		Short: "Repair an XFS filesystem",

		Args: cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE: cliutil.RunSubcommands,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			openFlag = os.O_RDWR
			return nil
		},
	}
	argparser.AddCommand(argparserRepair)

	for _, cmdgrp := range []struct {
		parent   *cobra.Command
		children []subcommand
	}{
		{argparserInspect, inspectors},
		{argparserRepair, repairers},
	} {
		for _, child := range cmdgrp.children {
			cmd := child.Command
			runE := child.RunE
			cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
				maybeSetErr := func(_err error) {
					if _err != nil && err == nil {
						err = _err
					}
				}
				cfg, err := repairconf.Load(configFlag, argparser.PersistentFlags())
				if err != nil {
					return err
				}
				if err := logLevelFlag.Set(cfg.Verbosity); err != nil {
					return err
				}
				stopProfiling, err := profFlags.Start()
				defer func() {
					maybeSetErr(stopProfiling())
				}()
				if err != nil {
					return err
				}

				ctx := cmd.Context()
				logger := textui.NewLogger(os.Stderr, logLevelFlag.Level)
				ctx = dlog.WithLogger(ctx, logger)
				dlog.SetFallbackLogger(logger.WithField("xfs-progs.THIS_IS_A_BUG", true))

				grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
					EnableSignalHandling: true,
				})
				grp.Go("main", func(ctx context.Context) (err error) {
					maybeSetErr := func(_err error) {
						if _err != nil && err == nil {
							err = _err
						}
					}
					ctx = dlog.WithField(ctx, "xfs.dev", devFlag)
					fs, err := xfs.Open(ctx, openFlag, devFlag)
					if err != nil {
						return err
					}
					defer func() {
						maybeSetErr(fs.Close())
					}()

					cmd.SetContext(ctx)
					return runE(fs, cfg, cmd, args)
				})
				return grp.Wait()
			}
			cmdgrp.parent.AddCommand(&cmd)
		}
	}

	if err := argparser.ExecuteContext(context.Background()); err != nil {
		textui.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
