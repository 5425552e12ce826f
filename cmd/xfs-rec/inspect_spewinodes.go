// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"git.lukeshu.com/xfs-progs-ng/lib/repairconf"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
	"git.lukeshu.com/xfs-progs-ng/lib/xfsrepair"
	"git.lukeshu.com/xfs-progs-ng/lib/xfsrepair/incore"
)

func init() {
	inspectors = append(inspectors, subcommand{
		Command: cobra.Command{
			Use:   "spew-inodes",
			Short: "Spew the superblock and every allocated inode core named in --records",
			Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(fs *xfs.FS, cfg *repairconf.Config, cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cfg.Records == "" {
				return fmt.Errorf("--records is required")
			}
			tree, err := incore.Load(ctx, cfg.Records)
			if err != nil {
				return err
			}

			spew := spew.NewDefaultConfig()
			spew.DisablePointerAddresses = true

			_, _ = os.Stdout.WriteString("superblock = ")
			spew.Dump(fs.Superblock())
			_, _ = os.Stdout.WriteString("\n")

			geom := fs.Geometry()
			for ag := uint32(0); ag < tree.AgCount(); ag++ {
				for rec := range xfsrepair.Chunks(tree, xfsprim.AgNumber(ag)) {
					for slot := 0; slot < xfsprim.InodesPerChunk; slot++ {
						if rec.IsFree(slot) {
							continue
						}
						ino := geom.AgInoToIno(xfsprim.AgNumber(ag), rec.AgIno(slot))
						ip, err := fs.ReadInode(ino)
						if err != nil {
							dlog.Error(ctx, err)
							continue
						}
						fmt.Fprintf(os.Stdout, "inode %v (refs=%v disk_nlink=%v) = ", ino, rec.NumRefs(slot), rec.DiskNlink(slot))
						spew.Dump(ip.Core)
						_, _ = os.Stdout.WriteString("\n")
					}
				}
			}
			return nil
		},
	})
}
