package pefile

// This file exposes just enough of Builder's accumulated state for
// internal/codegen to snapshot a compiled unit into an internal/objfile
// Object, and for internal/linker to rebuild a fresh Builder from several
// merged objects before calling Build. Grounded on AddFunctionCode's own
// doc comment, which already anticipated "the linker merging multiple
// objects" rebasing fixup offsets by a code base.

// Code returns the accumulated .text bytes.
func (b *Builder) Code() []byte { return b.code }

// Data returns the accumulated .data bytes.
func (b *Builder) Data() []byte { return b.data }

// Fixups returns every deferred code-buffer patch site recorded so far.
func (b *Builder) Fixups() []Fixup { return b.fixups }

// EntryOffset returns the .text-relative offset SetEntry last recorded.
func (b *Builder) EntryOffset() int { return b.entryOffset }
