package xcoff

import (
	"bytes"
	"encoding/binary"
)

// builder assembles a synthetic COFF image: header, then queued sections,
// then a free-form tail (symtab/strtab, already laid out at the offsets
// the test computed).
type builder struct {
	sections [][]byte
	tail     []byte
}

func (b *builder) addSection(raw []byte) { b.sections = append(b.sections, raw) }

func (b *builder) finish(machine uint16, symtabOfs, nsyms uint32) []byte {
	var out bytes.Buffer
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[0:2], machine)
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(b.sections)))
	binary.LittleEndian.PutUint32(hdr[4:8], 0)
	binary.LittleEndian.PutUint32(hdr[8:12], symtabOfs)
	binary.LittleEndian.PutUint32(hdr[12:16], nsyms)
	binary.LittleEndian.PutUint16(hdr[16:18], 0)
	binary.LittleEndian.PutUint16(hdr[18:20], 0)
	out.Write(hdr[:])
	for _, s := range b.sections {
		out.Write(s)
	}
	out.Write(b.tail)
	return out.Bytes()
}

// buildSection assembles one 40-byte section header.
func buildSection(name string, vaddr, vsize, offset, size, flags uint32) []byte {
	var buf [SectionSize]byte
	copy(buf[0:8], name)
	binary.LittleEndian.PutUint32(buf[8:12], vsize)
	binary.LittleEndian.PutUint32(buf[12:16], vaddr)
	binary.LittleEndian.PutUint32(buf[16:20], size)
	binary.LittleEndian.PutUint32(buf[20:24], offset)
	binary.LittleEndian.PutUint32(buf[36:40], flags)
	return buf[:]
}
