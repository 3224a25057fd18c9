package filemeta

import (
	"debug/elf"
	"errors"
)

// probeELF fills in the ELF-specific fields of st when path is an ELF
// binary. A non-ELF regular file leaves IsELFBinary false and returns nil —
// detection failure here is not an error, since most content entries are not
// binaries.
func probeELF(path string, st *Stats) error {
	f, err := elf.Open(path)
	if err != nil {
		// Not recognizable as ELF (short read, bad magic): not a binary.
		return nil
	}
	defer func() { _ = f.Close() }()

	st.IsELFBinary = true

	switch f.Class {
	case elf.ELFCLASS32:
		st.ELFClass = "ELF32"
	case elf.ELFCLASS64:
		st.ELFClass = "ELF64"
	}

	if name, ok := machineNames[f.Machine]; ok {
		st.Machine = name
	} else {
		st.Machine = "no machine"
	}

	for _, prog := range f.Progs {
		if prog.Type == elf.PT_DYNAMIC {
			st.Dynamic = true
		}
	}

	if section := f.Section(".note.gnu.build-id"); section != nil {
		data, err := section.Data()
		if err == nil {
			if id, ok := parseBuildIDNote(data); ok {
				st.BuildID = id
			}
		}
	}

	// A binary is "stripped" when it carries no symbol table. objcopy
	// --strip-unneeded removes .symtab but (per spec §4.6) keeps
	// .dynsym, so checking for .symtab's absence is the correct test.
	st.IsStripped = f.Section(".symtab") == nil

	return nil
}

// machineNames maps the subset of elf.Machine values relevant to this
// distribution's supported architectures to their Debian-style names.
var machineNames = map[elf.Machine]string{
	elf.EM_X86_64:  "x86-64",
	elf.EM_386:     "x86",
	elf.EM_AARCH64: "aarch64",
	elf.EM_ARM:     "arm",
	elf.EM_MIPS:    "mips",
	elf.EM_PPC64:   "ppc64",
	elf.EM_RISCV:   "riscv",
	elf.EM_S390:    "s390x",
}

// ErrMalformedNote is returned by parseBuildIDNote for a short/invalid note.
var ErrMalformedNote = errors.New("malformed build-id note")

// parseBuildIDNote extracts the descriptor bytes of the first NT_GNU_BUILD_ID
// note in an ELF .note.gnu.build-id section. Notes are laid out as
// (namesz, descsz, type, name[namesz padded to 4], desc[descsz padded to 4]).
func parseBuildIDNote(data []byte) ([]byte, bool) {
	const noteHeaderLen = 12

	for len(data) >= noteHeaderLen {
		nameSize := le32(data[0:4])
		descSize := le32(data[4:8])
		noteType := le32(data[8:12])

		pos := noteHeaderLen
		namePadded := align4(nameSize)
		descPadded := align4(descSize)

		if uint64(pos)+uint64(namePadded)+uint64(descPadded) > uint64(len(data)) {
			return nil, false
		}

		descStart := pos + int(namePadded)
		desc := data[descStart : descStart+int(descSize)]

		const ntGNUBuildID = 3
		if noteType == ntGNUBuildID {
			out := make([]byte, len(desc))
			copy(out, desc)
			return out, true
		}

		data = data[descStart+int(descPadded):]
	}

	return nil, false
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func align4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// NeededLibraries returns the DT_NEEDED entries of an ELF binary in
// declaration order, used by the shared-library resolver (spec §4.7).
func NeededLibraries(path string) ([]string, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return f.ImportedLibraries()
}
