package pefile

// This file assembles the final PE32+ image: header construction mirrors
// std/compiler/pe64.go's buildPE64 byte-for-byte layout (DOS stub, PE
// signature, COFF header, PE32+ optional header, 16 data directories,
// section table) but with three sections instead of the teacher's six or
// seven, and imageBase 0x140000000 per spec.md §4.8 instead of the
// teacher's 0x400000. Import table construction mirrors buildIData64/
// fixupIData64, generalized from the teacher's single hardcoded
// kernel32.dll to however many DLLs AddImport has recorded.

// SetEntry records the .text-relative offset of the entry point function;
// it defaults to 0 (the first bytes appended via AddCode/AddFunctionCode).
func (b *Builder) SetEntry(offset int) { b.entryOffset = offset }

func putU16(buf []byte, v uint16) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
}

func putU32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func putU64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}

type dllLayout struct {
	nameOff  uint32
	hintOffs []uint32
	iltOff   uint32
	iatOff   uint32
	funcs    []string
}

// buildImportTable lays out the import directory, ILT, IAT, hint/name
// table, and DLL name strings as one contiguous .idata blob, given the
// section's final RVA (needed up front since every thunk entry embeds an
// absolute RVA rather than a section-relative offset).
func (b *Builder) buildImportTable(idataRVA uint32) (content []byte, iatRVAs map[importRef]uint32, dirSize uint32) {
	n := len(b.importOrder)
	dirSize = uint32((n + 1) * 20)
	layouts := make([]dllLayout, n)
	cursor := dirSize

	for i, dll := range b.importOrder {
		layouts[i].nameOff = cursor
		cursor += uint32(len(dll) + 1)
	}
	for i, dll := range b.importOrder {
		funcs := b.imports[dll]
		layouts[i].funcs = funcs
		layouts[i].hintOffs = make([]uint32, len(funcs))
		for j, fn := range funcs {
			layouts[i].hintOffs[j] = cursor
			entryLen := 2 + len(fn) + 1
			if entryLen%2 != 0 {
				entryLen++
			}
			cursor += uint32(entryLen)
		}
	}
	for i := range layouts {
		layouts[i].iltOff = cursor
		cursor += uint32((len(layouts[i].funcs) + 1) * 8)
	}
	for i := range layouts {
		layouts[i].iatOff = cursor
		cursor += uint32((len(layouts[i].funcs) + 1) * 8)
	}

	buf := make([]byte, cursor)
	for i, dll := range b.importOrder {
		off := i * 20
		putU32(buf[off:], idataRVA+layouts[i].iltOff)   // OriginalFirstThunk
		putU32(buf[off+12:], idataRVA+layouts[i].nameOff) // Name
		putU32(buf[off+16:], idataRVA+layouts[i].iatOff)  // FirstThunk
		copy(buf[layouts[i].nameOff:], dll)
	}
	iatRVAs = map[importRef]uint32{}
	for i, dll := range b.importOrder {
		for j, fn := range layouts[i].funcs {
			hintOff := layouts[i].hintOffs[j]
			copy(buf[hintOff+2:], fn)
			entryRVA := uint64(idataRVA + hintOff)
			iltEntryOff := layouts[i].iltOff + uint32(j*8)
			iatEntryOff := layouts[i].iatOff + uint32(j*8)
			putU64(buf[iltEntryOff:], entryRVA)
			putU64(buf[iatEntryOff:], entryRVA)
			iatRVAs[importRef{DLL: dll, Func: fn}] = idataRVA + iatEntryOff
		}
	}
	return buf, iatRVAs, dirSize
}

// applyFixups patches every recorded disp32 site against the now-final
// section RVAs and import slots, per spec.md §4.8.
func (b *Builder) applyFixups(dataRVA uint32, iatRVAs map[importRef]uint32) {
	for _, f := range b.fixups {
		instrEnd := uint32(textRVA + f.CodeOffset + 4)
		var target uint32
		switch f.Kind {
		case FixupData:
			target = dataRVA + f.DataOffset
		case FixupImport:
			target = iatRVAs[importRef{DLL: f.DLL, Func: f.Func}]
		}
		disp := int32(target) - int32(instrEnd)
		putU32(b.code[f.CodeOffset:], uint32(disp))
	}
}

const (
	machineAMD64        = 0x8664
	peCharacteristics   = 0x0022 // EXECUTABLE_IMAGE | LARGE_ADDRESS_AWARE
	optHeaderMagicPE32P = 0x20b
	subsystemConsole    = 3
	numRvaAndSizes      = 16
	importDirIndex      = 1
)

// Build assembles the full PE32+ image: computes section RVAs from the
// accumulated code/data sizes (spec.md §4.8 calculateActualRVAs), builds
// the import table at its now-known RVA, patches every recorded fixup,
// and writes DOS/COFF/optional headers plus the three section headers
// and their raw data.
func (b *Builder) Build() []byte {
	dataRVA := uint32(alignUp(textRVA+len(b.code), sectionAlignment))
	idataRVA := uint32(alignUp(int(dataRVA)+len(b.data), sectionAlignment))

	idataContent, iatRVAs, _ := b.buildImportTable(idataRVA)
	b.applyFixups(dataRVA, iatRVAs)

	textRaw := alignUp(len(b.code), fileAlignment)
	dataRaw := alignUp(len(b.data), fileAlignment)
	idataRaw := alignUp(len(idataContent), fileAlignment)

	sizeOfImage := alignUp(int(idataRVA)+len(idataContent), sectionAlignment)

	const numSections = 3
	dosHeaderSize := 0x80
	coffHeaderSize := 20
	optHeaderFixedSize := 24 + 88 // standard fields + windows-specific fields (PE32+)
	dataDirsSize := numRvaAndSizes * 8
	sectionHeadersSize := numSections * 40

	headersSize := dosHeaderSize + 4 + coffHeaderSize + optHeaderFixedSize + dataDirsSize + sectionHeadersSize
	headersRaw := alignUp(headersSize, fileAlignment)

	textFileOff := headersRaw
	dataFileOff := textFileOff + textRaw
	idataFileOff := dataFileOff + dataRaw

	out := make([]byte, headersRaw+textRaw+dataRaw+idataRaw)

	// DOS header: "MZ" plus a minimal stub, e_lfanew pointing past it.
	out[0], out[1] = 'M', 'Z'
	putU32(out[0x3c:], uint32(dosHeaderSize))

	peOff := dosHeaderSize
	copy(out[peOff:], []byte("PE\x00\x00"))

	coffOff := peOff + 4
	putU16(out[coffOff:], machineAMD64)
	putU16(out[coffOff+2:], numSections)
	// TimeDateStamp, PointerToSymbolTable, NumberOfSymbols left zero.
	putU16(out[coffOff+16:], uint16(optHeaderFixedSize+dataDirsSize))
	putU16(out[coffOff+18:], peCharacteristics)

	optOff := coffOff + coffHeaderSize
	putU16(out[optOff:], optHeaderMagicPE32P)
	out[optOff+2] = 0 // MajorLinkerVersion
	out[optOff+3] = 1 // MinorLinkerVersion
	putU32(out[optOff+4:], uint32(len(b.code)))  // SizeOfCode
	putU32(out[optOff+8:], uint32(len(b.data)+len(idataContent))) // SizeOfInitializedData
	// SizeOfUninitializedData left zero
	putU32(out[optOff+16:], uint32(textRVA+b.entryOffset)) // AddressOfEntryPoint
	putU32(out[optOff+20:], uint32(textRVA))                // BaseOfCode

	winOff := optOff + 24
	putU64(out[winOff:], uint64(imageBase))
	putU32(out[winOff+8:], sectionAlignment)
	putU32(out[winOff+12:], fileAlignment)
	putU16(out[winOff+16:], 6) // MajorOSVersion
	// Minor OS/Image versions left zero
	putU16(out[winOff+24:], 6) // MajorSubsystemVersion
	// Win32VersionValue left zero
	putU32(out[winOff+32:], uint32(sizeOfImage))
	putU32(out[winOff+36:], uint32(headersRaw))
	// CheckSum left zero
	putU16(out[winOff+44:], subsystemConsole)
	// DllCharacteristics left zero
	putU64(out[winOff+48:], 0x100000) // SizeOfStackReserve
	putU64(out[winOff+56:], 0x1000)   // SizeOfStackCommit
	putU64(out[winOff+64:], 0x100000) // SizeOfHeapReserve
	putU64(out[winOff+72:], 0x1000)   // SizeOfHeapCommit
	// LoaderFlags left zero
	putU32(out[winOff+84:], numRvaAndSizes)

	dataDirOff := winOff + 88
	putU32(out[dataDirOff+importDirIndex*8:], idataRVA)
	putU32(out[dataDirOff+importDirIndex*8+4:], uint32(len(idataContent)))

	secOff := dataDirOff + dataDirsSize
	writeSection(out, secOff, ".text", len(b.code), textRVA, textRaw, textFileOff, 0x60000020)
	writeSection(out, secOff+40, ".data", len(b.data), int(dataRVA), dataRaw, dataFileOff, 0xc0000040)
	writeSection(out, secOff+80, ".idata", len(idataContent), int(idataRVA), idataRaw, idataFileOff, 0xc0000040)

	copy(out[textFileOff:], b.code)
	copy(out[dataFileOff:], b.data)
	copy(out[idataFileOff:], idataContent)

	return out
}

func writeSection(out []byte, off int, name string, virtualSize, rva, rawSize, fileOff int, characteristics uint32) {
	copy(out[off:off+8], name)
	putU32(out[off+8:], uint32(virtualSize))
	putU32(out[off+12:], uint32(rva))
	putU32(out[off+16:], uint32(rawSize))
	putU32(out[off+20:], uint32(fileOff))
	putU32(out[off+36:], characteristics)
}
