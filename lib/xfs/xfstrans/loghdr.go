// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfstrans

import (
	"hash/crc32"

	"github.com/tchajed/marshal"
)

const (
	logMagic uint64 = 0x5846_5452_4c4f_4731 // "XFTRLOG1"

	// HdrAddrs is the most blocks a single commit can log.
	HdrAddrs uint64 = 32
)

// logHeader is the first block of the log region.  A header with
// the magic number and a matching checksum means the blocks after
// it are a complete record that has not yet been installed.
//
//	magic | seq | count | crc | addrs[HdrAddrs]
type logHeader struct {
	Seq   uint64
	Count uint64
	CRC   uint64
	Addrs []uint64
}

var crc32c = crc32.MakeTable(crc32.Castagnoli)

func (h logHeader) encode(blockSize uint64) []byte {
	enc := marshal.NewEnc(blockSize)
	enc.PutInt(logMagic)
	enc.PutInt(h.Seq)
	enc.PutInt(h.Count)
	enc.PutInt(h.CRC)
	addrs := make([]uint64, HdrAddrs)
	copy(addrs, h.Addrs)
	enc.PutInts(addrs)
	return enc.Finish()
}

// decodeLogHeader returns ok=false for a clean (cleared) log.
func decodeLogHeader(blk []byte) (h logHeader, ok bool) {
	dec := marshal.NewDec(blk)
	if dec.GetInt() != logMagic {
		return h, false
	}
	h.Seq = dec.GetInt()
	h.Count = dec.GetInt()
	h.CRC = dec.GetInt()
	h.Addrs = dec.GetInts(HdrAddrs)
	return h, true
}

// checksum covers everything in the record but the checksum itself.
func (h logHeader) checksum(blockSize uint64, blocks [][]byte) uint64 {
	h.CRC = 0
	sum := crc32.Checksum(h.encode(blockSize), crc32c)
	for _, blk := range blocks {
		sum = crc32.Update(sum, crc32c, blk)
	}
	return uint64(sum)
}
