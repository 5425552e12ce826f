// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package xfsrepair implements phase 7 of the repair: reconciling
// each inode's on-disk link count with the reference count computed
// by the earlier phases.
package xfsrepair

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"git.lukeshu.com/xfs-progs-ng/lib/textui"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfstrans"
)

// nlinkResBlocks is the log reservation for a single inode core
// update.
const nlinkResBlocks = 10

// Options are fixed for the life of a Phase7.
type Options struct {
	// NoModify reports mismatches without writing anything.
	NoModify bool
	// Prefetch walks the AGs concurrently, one task per AG.
	Prefetch bool
	// Workers bounds the number of AG tasks running at once when
	// Prefetch is set; <= 0 means GOMAXPROCS.
	Workers int
	// Orphanage is the lost+found inode, whose link count is
	// never touched here.
	Orphanage xfsprim.Ino
	// ProgressInterval is how often to log progress; <= 0 means
	// textui.DefaultProgressInterval.
	ProgressInterval time.Duration
	// Registry receives the phase's metrics; may be nil.
	Registry prometheus.Registerer
}

// Correction is one link count mismatch that was fixed, or that
// would have been.
type Correction struct {
	Ino     xfsprim.Ino
	From    uint32
	To      uint32
	Outcome Outcome
}

// Summary is the result of a completed run.
type Summary struct {
	NoModify bool
	// Examined counts inode slots in walked chunks, free or not.
	Examined uint64
	// PerAG is Examined broken down by AG.
	PerAG []uint64
	// Live counts allocated inodes checked.
	Live uint64
	// Corrections is sorted by inode number.
	Corrections []Correction
	// Unresolved lists inodes a verify-only run could not load.
	Unresolved []xfsprim.Ino
	// Upgraded counts version 1 inodes rewritten as version 2.
	Upgraded uint64
}

func (s *Summary) String() string {
	verb := "corrected"
	if s.NoModify {
		verb = "would correct"
	}
	return textui.Sprintf("examined %v inode slots, %v live, %s %v link counts, %v unresolved, %v upgraded to v2",
		s.Examined, s.Live, verb, len(s.Corrections), len(s.Unresolved), s.Upgraded)
}

type progressStats struct {
	textui.Portion[uint64]
	Corrections uint64
	NoModify    bool
}

func (s progressStats) String() string {
	verb := "corrected"
	if s.NoModify {
		verb = "would correct"
	}
	return textui.Sprintf("%v inodes, %v %s", s.Portion, s.Corrections, verb)
}

// Phase7 is a single run of link count reconciliation.  It may only
// be Run once.
type Phase7 struct {
	opts    Options
	journal *xfstrans.Journal
	fs      *xfs.FS
	geom    xfsprim.Geometry
	src     InodeRecordSource
	total   uint64
	metrics *metrics

	ran            atomic.Bool
	progress       []atomic.Uint64
	live           atomic.Uint64
	nCorrections   atomic.Uint64
	upgraded       atomic.Uint64
	progressWriter *textui.Progress[progressStats]

	mu          sync.Mutex
	corrections []Correction
	unresolved  []xfsprim.Ino
}

// New checks that src describes the volume behind journal and
// prepares a run.
func New(journal *xfstrans.Journal, src InodeRecordSource, opts Options) (*Phase7, error) {
	fs := journal.FS()
	geom := fs.Geometry()
	if src.AgCount() != geom.AgCount {
		return nil, fmt.Errorf("inode records cover %v AGs, but the volume has %v", src.AgCount(), geom.AgCount)
	}
	if !opts.NoModify && fs.ReadOnly() {
		return nil, fmt.Errorf("correcting link counts: %w", xfs.ErrReadOnly)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	total := fs.Superblock().ICount
	if total == 0 {
		total = geom.TotalInodeSlots()
	}
	return &Phase7{
		opts:     opts,
		journal:  journal,
		fs:       fs,
		geom:     geom,
		src:      src,
		total:    total,
		metrics:  newMetrics(opts.Registry),
		progress: make([]atomic.Uint64, geom.AgCount),
	}, nil
}

// Run walks every AG and returns once all of them are done.  Any
// InvariantViolationError, or a ResolutionError in a repairing run,
// fails the whole run.
func (p *Phase7) Run(ctx context.Context) (*Summary, error) {
	if p.ran.Swap(true) {
		return nil, errors.New("phase 7 has already been run")
	}
	ctx = dlog.WithField(ctx, "xfsrepair.phase", 7)
	if p.opts.NoModify {
		dlog.Info(ctx, "Phase 7 - verify link counts...")
	} else {
		dlog.Info(ctx, "Phase 7 - verify and correct link counts...")
	}

	p.progressWriter = textui.NewProgress[progressStats](ctx, dlog.LogLevelInfo, p.opts.ProgressInterval)
	p.reportProgress()
	var err error
	if p.opts.Prefetch {
		err = p.runConcurrent(ctx)
	} else {
		err = p.runSequential(ctx)
	}
	p.progressWriter.Done()
	if err != nil {
		return nil, err
	}

	sum := p.summary()
	p.finalReport(ctx, sum)
	return sum, nil
}

func (p *Phase7) runSequential(ctx context.Context) error {
	for ag := uint32(0); ag < p.src.AgCount(); ag++ {
		if err := p.walkAG(ctx, xfsprim.AgNumber(ag)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Phase7) runConcurrent(ctx context.Context) error {
	sem := semaphore.NewWeighted(int64(p.opts.Workers))

	var (
		failed   atomic.Bool
		failOnce sync.Once
		firstErr error
	)
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	for i := uint32(0); i < p.src.AgCount(); i++ {
		ag := xfsprim.AgNumber(i)
		grp.Go(fmt.Sprintf("ag-%d", ag), func(ctx context.Context) error {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Shutting down; the cause is reported elsewhere.
				return nil //nolint:nilerr // see above
			}
			defer sem.Release(1)
			if failed.Load() {
				return nil
			}
			if err := p.walkAG(ctx, ag); err != nil {
				failOnce.Do(func() { firstErr = err })
				failed.Store(true)
				return err
			}
			return nil
		})
	}
	werr := grp.Wait()
	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return werr
}

// walkAG checks every allocated inode in one AG, in ascending order.
func (p *Phase7) walkAG(ctx context.Context, ag xfsprim.AgNumber) error {
	ctx = dlog.WithField(ctx, "xfsrepair.ag", ag)
	start := time.Now()
	defer func() { p.metrics.agSeconds.Observe(time.Since(start).Seconds()) }()

	for rec := range Chunks(p.src, ag) {
		if err := ctx.Err(); err != nil {
			return err
		}
		for slot := 0; slot < xfsprim.InodesPerChunk; slot++ {
			if rec.IsFree(slot) {
				continue
			}
			ino := p.geom.AgInoToIno(ag, rec.AgIno(slot))
			if err := p.checkSlotState(ag, ino, rec.IsConfirmed(slot), rec.IsReached(slot), rec.IsReferenced(slot)); err != nil {
				return err
			}
			p.live.Add(1)
			p.metrics.live.WithLabelValues(agLabel(ag)).Inc()

			nrefs := rec.NumRefs(slot)
			if rec.DiskNlink(slot) != nrefs {
				if _, err := p.updateInodeNlinks(ctx, ino, nrefs); err != nil {
					return err
				}
			}
		}
		p.progress[ag].Add(xfsprim.InodesPerChunk)
		p.metrics.examined.WithLabelValues(agLabel(ag)).Add(xfsprim.InodesPerChunk)
		p.reportProgress()
	}
	return nil
}

func (p *Phase7) checkSlotState(ag xfsprim.AgNumber, ino xfsprim.Ino, confirmed, reached, referenced bool) error {
	var what string
	switch {
	case !confirmed:
		what = "allocated inode was not confirmed by the inode scan"
	case p.opts.NoModify:
		return nil
	case !reached:
		what = "allocated inode was not reached from the directory tree"
	case !referenced:
		what = "allocated inode is not referenced by any directory entry"
	default:
		return nil
	}
	return &InvariantViolationError{AG: ag, Ino: ino, What: what}
}

// updateInodeNlinks brings one inode's on-disk link count to nlinks,
// or in a verify-only run reports that it would.  A transaction is
// opened for every call; it is committed only if the inode changed.
func (p *Phase7) updateInodeNlinks(ctx context.Context, ino xfsprim.Ino, nlinks uint32) (Outcome, error) {
	ag := p.geom.InoToAg(ino)
	res := nlinkResBlocks
	if p.opts.NoModify {
		res = 0
	}
	tp, err := p.journal.Alloc(ctx, res)
	if err != nil {
		return Unchanged, &InvariantViolationError{AG: ag, Ino: ino, What: "reserving transaction", Err: err}
	}

	ip, err := tp.IGet(ctx, ino)
	if err != nil {
		tp.Cancel()
		rerr := &ResolutionError{Ino: ino, Err: err}
		if !p.opts.NoModify {
			return Unresolved, rerr
		}
		dlog.Warnf(ctx, "%v, can't compare link counts", rerr)
		p.record(Unresolved, Correction{Ino: ino, To: nlinks})
		return Unresolved, nil
	}

	cur := ip.Nlink()
	switch {
	case ino == p.opts.Orphanage:
		// lost+found is kept correct as entries are moved in to it.
		tp.Cancel()
		dlog.Debugf(ctx, "leaving orphanage inode %v nlinks at %v", ino, cur)
		return Orphanage, nil
	case cur == nlinks:
		tp.Cancel()
		return Unchanged, nil
	case p.opts.NoModify:
		tp.Cancel()
		dlog.Warnf(ctx, "would have reset inode %v nlinks from %v to %v", ino, cur, nlinks)
		p.record(WouldCorrect, Correction{Ino: ino, From: cur, To: nlinks})
		return WouldCorrect, nil
	}

	if nlinks > xfsprim.MaxLink {
		tp.Cancel()
		return Unchanged, &InvariantViolationError{AG: ag, Ino: ino,
			What: fmt.Sprintf("nlinks %v exceeds the largest link count an inode can hold (%v)", nlinks, xfsprim.MaxLink)}
	}
	dlog.Warnf(ctx, "resetting inode %v nlinks from %v to %v", ino, cur, nlinks)
	ip.SetNlink(nlinks)
	upgrade := ip.NeedsUpgrade()
	if upgrade {
		if !p.fs.Superblock().HasNlink() {
			tp.Cancel()
			return Unchanged, &InvariantViolationError{AG: ag, Ino: ino,
				What: fmt.Sprintf("nlinks %v does not fit a v1 inode and the volume lacks the NLINK feature", nlinks)}
		}
		dlog.Warnf(ctx, "nlinks %v will overflow v1 ino, ino %v will be converted to version 2", nlinks, ino)
	}
	if err := tp.LogInode(ip); err != nil {
		tp.Cancel()
		return Unchanged, &InvariantViolationError{AG: ag, Ino: ino, What: "logging inode core", Err: err}
	}
	if err := tp.Commit(ctx); err != nil {
		return Unchanged, &InvariantViolationError{AG: ag, Ino: ino, What: "committing transaction", Err: err}
	}
	if upgrade {
		p.upgraded.Add(1)
		p.metrics.upgrades.Inc()
	}
	p.record(Corrected, Correction{Ino: ino, From: cur, To: nlinks})
	return Corrected, nil
}

func (p *Phase7) record(outcome Outcome, c Correction) {
	p.metrics.outcomes.WithLabelValues(outcome.String()).Inc()
	p.mu.Lock()
	defer p.mu.Unlock()
	if outcome == Unresolved {
		p.unresolved = append(p.unresolved, c.Ino)
		return
	}
	c.Outcome = outcome
	p.corrections = append(p.corrections, c)
	p.nCorrections.Add(1)
}

func (p *Phase7) examined() (total uint64, perAG []uint64) {
	perAG = make([]uint64, len(p.progress))
	for i := range p.progress {
		perAG[i] = p.progress[i].Load()
		total += perAG[i]
	}
	return total, perAG
}

func (p *Phase7) reportProgress() {
	n, _ := p.examined()
	d := p.total
	if n > d {
		d = n
	}
	p.progressWriter.Set(progressStats{
		Portion:     textui.Portion[uint64]{N: n, D: d},
		Corrections: p.nCorrections.Load(),
		NoModify:    p.opts.NoModify,
	})
}

func (p *Phase7) summary() *Summary {
	total, perAG := p.examined()
	p.mu.Lock()
	defer p.mu.Unlock()
	sum := &Summary{
		NoModify:    p.opts.NoModify,
		Examined:    total,
		PerAG:       perAG,
		Live:        p.live.Load(),
		Corrections: append([]Correction(nil), p.corrections...),
		Unresolved:  append([]xfsprim.Ino(nil), p.unresolved...),
		Upgraded:    p.upgraded.Load(),
	}
	sort.Slice(sum.Corrections, func(i, j int) bool { return sum.Corrections[i].Ino < sum.Corrections[j].Ino })
	sort.Slice(sum.Unresolved, func(i, j int) bool { return sum.Unresolved[i] < sum.Unresolved[j] })
	return sum
}

func (p *Phase7) finalReport(ctx context.Context, sum *Summary) {
	for ag, n := range sum.PerAG {
		dlog.Debugf(ctx, "AG %v: %v inode slots examined", ag, n)
	}
	dlog.Infof(ctx, "phase 7 done: %v", sum)
}
