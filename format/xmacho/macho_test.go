package xmacho

import (
	"bytes"
	"encoding/binary"
)

// builder assembles a synthetic thin Mach-O image for tests: a header
// followed by load commands appended via cmd, then a free-form tail (the
// symtab/strtab region, read at offsets the test computes itself).
type builder struct {
	order binary.ByteOrder
	is64  bool
	cmds  [][]byte
}

func newBuilder(is64 bool) *builder {
	return &builder{order: binary.LittleEndian, is64: is64}
}

// cmd appends a complete load command (including its own cmd/cmdsize
// prefix) to the pending command list.
func (b *builder) cmd(raw []byte) { b.cmds = append(b.cmds, raw) }

// loadCommandBytes builds a generic {cmd, cmdsize} + body load command.
func loadCommandBytes(order binary.ByteOrder, cmd uint32, body []byte) []byte {
	var out bytes.Buffer
	var hdr [8]byte
	order.PutUint32(hdr[0:4], cmd)
	order.PutUint32(hdr[4:8], uint32(8+len(body)))
	out.Write(hdr[:])
	out.Write(body)
	return out.Bytes()
}

// finish writes the header (magic sized per is64) plus every queued
// command, then appends tail verbatim (already-absolute-offset content the
// test constructed itself, e.g. a symtab/strtab region).
func (b *builder) finish(tail []byte) []byte {
	var sizeCmds uint32
	for _, c := range b.cmds {
		sizeCmds += uint32(len(c))
	}
	var out bytes.Buffer
	if b.is64 {
		var hdr [32]byte
		b.order.PutUint32(hdr[0:4], MagicLE64)
		b.order.PutUint32(hdr[4:8], CpuTypeX8664)
		b.order.PutUint32(hdr[8:12], CpuSubtypeX8664)
		b.order.PutUint32(hdr[12:16], FileTypeObject)
		b.order.PutUint32(hdr[16:20], uint32(len(b.cmds)))
		b.order.PutUint32(hdr[20:24], sizeCmds)
		out.Write(hdr[:])
	} else {
		var hdr [28]byte
		b.order.PutUint32(hdr[0:4], MagicLE32)
		b.order.PutUint32(hdr[4:8], CpuTypeX86)
		b.order.PutUint32(hdr[8:12], CpuSubtypeX86)
		b.order.PutUint32(hdr[12:16], FileTypeObject)
		b.order.PutUint32(hdr[16:20], uint32(len(b.cmds)))
		b.order.PutUint32(hdr[20:24], sizeCmds)
		out.Write(hdr[:])
	}
	for _, c := range b.cmds {
		out.Write(c)
	}
	out.Write(tail)
	return out.Bytes()
}

func (b *builder) headerSize() int {
	if b.is64 {
		return HeaderSize64
	}
	return HeaderSize32
}

// buildSegment64 assembles one LC_SEGMENT_64 load command carrying a single
// section whose file offset is sectionOffset, for tests that need real
// section data to bound findLowFileoff.
func buildSegment64(order binary.ByteOrder, sectionOffset, sectionSize uint64) []byte {
	var body bytes.Buffer
	body.Write(make([]byte, 16)) // segname
	var u64buf [8]byte
	writeU64 := func(v uint64) { order.PutUint64(u64buf[:], v); body.Write(u64buf[:]) }
	writeU64(0)            // vmaddr
	writeU64(sectionSize)   // vmsize
	writeU64(sectionOffset) // fileoff
	writeU64(sectionSize)   // filesize
	var u32buf [4]byte
	writeU32 := func(v uint32) { order.PutUint32(u32buf[:], v); body.Write(u32buf[:]) }
	writeU32(VMProtRead | VMProtExecute) // maxprot
	writeU32(VMProtRead | VMProtExecute) // initprot
	writeU32(1)                          // nsects
	writeU32(0)                          // flags

	// section_64
	body.Write(make([]byte, 16)) // sectname
	body.Write(make([]byte, 16)) // segname
	writeU64(0)            // addr
	writeU64(sectionSize)   // size
	writeU32(uint32(sectionOffset)) // offset
	writeU32(3)             // align
	writeU32(0)             // reloff
	writeU32(0)             // nreloc
	writeU32(SectTypeRegular)
	writeU32(0) // reserved1
	writeU32(0) // reserved2
	writeU32(0) // reserved3

	return loadCommandBytes(order, LcSegment64, body.Bytes())
}
