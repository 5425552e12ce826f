// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package profile

import (
	"fmt"
	"os"

	"github.com/datawire/dlib/derror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Flags holds the output filename for each profile; empty means
// don't write that profile.
type Flags struct {
	CPU       string
	Trace     string
	Heap      string
	Goroutine string
	Mutex     string
}

// Register adds a --{prefix}{cpu,trace,heap,goroutine,mutex} flag for
// each field.
func (f *Flags) Register(flags *pflag.FlagSet, prefix string) {
	for _, def := range []struct {
		dst   *string
		name  string
		usage string
	}{
		{&f.CPU, "cpu", "write a CPU profile to the file `cpu.pprof`"},
		{&f.Trace, "trace", "write an execution trace to the file `trace.out`"},
		{&f.Heap, "heap", "write a heap profile to the file `heap.pprof`"},
		{&f.Goroutine, "goroutine", "write a goroutine profile to the file `goroutine.pprof`"},
		{&f.Mutex, "mutex", "write a mutex profile to the file `mutex.pprof`"},
	} {
		flags.StringVar(def.dst, prefix+def.name, "", def.usage)
		_ = cobra.MarkFlagFilename(flags, prefix+def.name)
	}
}

// Start creates the requested files and starts profiling.  The
// returned StopFunc finishes every profile and closes the files; it
// must be called even if Start fails part way.
func (f *Flags) Start() (StopFunc, error) {
	var stops []StopFunc
	stop := func() error {
		var errs derror.MultiError
		for i := len(stops) - 1; i >= 0; i-- {
			if err := stops[i](); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return errs
		}
		return nil
	}
	for _, def := range []struct {
		filename string
		start    startFunc
	}{
		{f.CPU, CPU},
		{f.Trace, Trace},
		{f.Heap, Named("heap")},
		{f.Goroutine, Named("goroutine")},
		{f.Mutex, Named("mutex")},
	} {
		if def.filename == "" {
			continue
		}
		w, err := os.Create(def.filename)
		if err != nil {
			return stop, err
		}
		shutdown, err := def.start(w)
		if err != nil {
			_ = w.Close()
			return stop, fmt.Errorf("profile %q: %w", def.filename, err)
		}
		stops = append(stops, func() error {
			err1 := shutdown()
			err2 := w.Close()
			if err1 != nil {
				return err1
			}
			return err2
		})
	}
	return stop, nil
}
