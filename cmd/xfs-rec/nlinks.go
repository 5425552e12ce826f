// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"git.lukeshu.com/xfs-progs-ng/lib/repairconf"
	"git.lukeshu.com/xfs-progs-ng/lib/textui"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfstrans"
	"git.lukeshu.com/xfs-progs-ng/lib/xfsrepair"
	"git.lukeshu.com/xfs-progs-ng/lib/xfsrepair/incore"
)

var errMismatches = errors.New("link count mismatches found")

func init() {
	inspectors = append(inspectors, subcommand{
		Command: cobra.Command{
			Use:   "check-nlinks",
			Short: "Report inodes whose link count disagrees with the inode records",
			Long: "" +
				"Compare the link count of every allocated inode against the reference " +
				"count in --records, without writing anything.  Exits non-zero if any " +
				"inode would have been corrected.",
			Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(fs *xfs.FS, cfg *repairconf.Config, cmd *cobra.Command, _ []string) error {
			sum, err := runPhase7(cmd.Context(), fs, cfg, true)
			if err != nil {
				return err
			}
			if len(sum.Corrections) > 0 || len(sum.Unresolved) > 0 {
				return errMismatches
			}
			return nil
		},
	})
	repairers = append(repairers, subcommand{
		Command: cobra.Command{
			Use:   "fix-nlinks",
			Short: "Rewrite link counts that disagree with the inode records",
			Long: "" +
				"Replay any pending journal record, then set the link count of every " +
				"allocated inode to the reference count in --records.  Each inode is " +
				"updated in its own journaled transaction.",
			Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(fs *xfs.FS, cfg *repairconf.Config, cmd *cobra.Command, _ []string) error {
			_, err := runPhase7(cmd.Context(), fs, cfg, false)
			return err
		},
	})
}

func runPhase7(ctx context.Context, fs *xfs.FS, cfg *repairconf.Config, noModify bool) (_ *xfsrepair.Summary, err error) {
	if cfg.Records == "" {
		return nil, fmt.Errorf("--records is required")
	}
	tree, err := incore.Load(ctx, cfg.Records)
	if err != nil {
		return nil, err
	}
	orphanage := tree.Orphanage()
	if cfg.Orphanage != 0 {
		orphanage = xfsprim.Ino(cfg.Orphanage)
	}

	journal, err := xfstrans.Open(ctx, fs)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	if cfg.MetricsTextfile != "" {
		defer func() {
			if _err := prometheus.WriteToTextfile(cfg.MetricsTextfile, reg); _err != nil && err == nil {
				err = _err
			}
		}()
	}

	phase, err := xfsrepair.New(journal, tree, xfsrepair.Options{
		NoModify:         noModify,
		Prefetch:         cfg.Prefetch,
		Workers:          cfg.Workers,
		Orphanage:        orphanage,
		ProgressInterval: cfg.ProgressInterval,
		Registry:         reg,
	})
	if err != nil {
		return nil, err
	}
	sum, err := phase.Run(ctx)
	dlog.Info(ctx, journal.Stats())
	if err != nil {
		return nil, err
	}

	for _, c := range sum.Corrections {
		fmt.Fprintf(os.Stdout, "%v\t%v\t%v -> %v\n", c.Outcome, c.Ino, c.From, c.To)
	}
	for _, ino := range sum.Unresolved {
		fmt.Fprintf(os.Stdout, "%v\t%v\n", xfsrepair.Unresolved, ino)
	}
	textui.Fprintf(os.Stdout, "%v\n", sum)
	return sum, nil
}
