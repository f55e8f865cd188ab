// Package symrec defines the symbol record shared by every format reader,
// per §3: nm-style {name, type, section, value, storage class}, plus the
// per-archive-member grouping used when aggregating symbols across an
// archive.
package symrec

// Symbol is one entry from a format's symbol table, normalised to the
// Unix nm convention: Type is 'U' undefined, 'T'/'t' text (global/local),
// 'D'/'d' data, 'B'/'b' bss, 'S'/'s' other.
type Symbol struct {
	Name         string
	Type         byte
	Section      int
	Value        uint64
	HasValue     bool
	StorageClass int
}

// Member groups the symbols defined by one object file inside an archive.
type Member struct {
	ObjectFile string
	Symbols    []Symbol
}
