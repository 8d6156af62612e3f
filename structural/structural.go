package structural

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"encoding/binary"
	"io"
	"mtriage_go/common"
	"os"
	"strings"
	"time"
)

const (
	// hard cap on bytes read for static analysis, bounds memory on huge inputs
	MaxStaticReadBytes = 10 * 1024 * 1024

	highEntropyThreshold = 7.0

	minPESize = 64
)

// PE section characteristic bits not exported by debug/pe
const (
	imageScnMemExecute = 0x20000000
	imageScnMemRead    = 0x40000000
	imageScnMemWrite   = 0x80000000
)

// known packer section-name substrings, lowercase
var packerSectionHints = map[string]string{
	".upx":     "UPX",
	"upx0":     "UPX",
	"upx1":     "UPX",
	".aspack":  "ASPack",
	".adata":   "ASPack",
	".petite":  "Petite",
	".mpress":  "MPRESS",
	".themida": "Themida",
	".vmp":     "VMProtect",
	".enigma":  "Enigma",
	".nsp":     "NsPack",
	".packed":  "generic packer",
}

// AnalyzeFile reads up to MaxStaticReadBytes of the file and inspects it.
// The file is never executed here. Any failure to read yields an empty,
// unrecognized profile rather than an error: structural evidence is
// optional, absence of it must not abort a scan.
func AnalyzeFile(fpath string) *common.StructuralProfile {
	fd, err := os.OpenFile(fpath, os.O_RDONLY, 0644)
	if err != nil {
		return emptyProfile()
	}
	defer fd.Close()
	data, err := io.ReadAll(io.LimitReader(fd, MaxStaticReadBytes))
	if err != nil {
		return emptyProfile()
	}
	return AnalyzeBytes(data)
}

// AnalyzeBytes inspects an in-memory buffer. It must never panic on
// malformed headers: all parsing is bounds-checked and additionally
// guarded with a recover, since the input is adversarial by definition.
func AnalyzeBytes(data []byte) (prof *common.StructuralProfile) {
	prof = emptyProfile()
	defer func() {
		if r := recover(); r != nil {
			if common.Logger != nil {
				common.Logger.Warnln("structural parse recovered from malformed input: ", r)
			}
			prof = emptyProfile()
		}
	}()

	switch {
	case isPE(data):
		parsePE(data, prof)
	case isELF(data):
		parseELF(data, prof)
	}
	return prof
}

func emptyProfile() *common.StructuralProfile {
	return &common.StructuralProfile{
		Imports:             []common.ImportRef{},
		HighEntropySections: []common.HighEntropySection{},
		RWXSections:         []string{},
	}
}

func isPE(data []byte) bool {
	if len(data) < minPESize {
		return false
	}
	if data[0] != 'M' || data[1] != 'Z' {
		return false
	}
	peOff := int64(binary.LittleEndian.Uint32(data[0x3c:0x40]))
	// reject self-referential or overflowing e_lfanew offsets
	if peOff < 0 || peOff+4 > int64(len(data)) {
		return false
	}
	return bytes.Equal(data[peOff:peOff+4], []byte{'P', 'E', 0, 0})
}

func isELF(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte{0x7f, 'E', 'L', 'F'})
}

func parsePE(data []byte, prof *common.StructuralProfile) {
	peFile, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return
	}
	defer peFile.Close()

	prof.IsRecognizedFormat = true
	prof.SectionCount = len(peFile.Sections)

	switch peFile.Machine {
	case pe.IMAGE_FILE_MACHINE_AMD64, pe.IMAGE_FILE_MACHINE_ARM64:
		prof.Is64Bit = true
	}

	switch oh := peFile.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		prof.EntryPoint = uint64(oh.AddressOfEntryPoint)
		prof.ImageBase = uint64(oh.ImageBase)
		prof.ExportsCount = exportCount(oh.DataDirectory[:])
	case *pe.OptionalHeader64:
		prof.EntryPoint = uint64(oh.AddressOfEntryPoint)
		prof.ImageBase = oh.ImageBase
		prof.ExportsCount = exportCount(oh.DataDirectory[:])
	}

	if ts := peFile.FileHeader.TimeDateStamp; ts != 0 {
		ct := time.Unix(int64(ts), 0).UTC()
		prof.CompileTime = &ct
	}

	for _, sec := range peFile.Sections {
		if sec == nil {
			continue
		}
		name := strings.TrimRight(sec.Name, "\x00")

		rwx := imageScnMemRead | imageScnMemWrite | imageScnMemExecute
		if sec.Characteristics&uint32(rwx) == uint32(rwx) {
			// readable+writable+executable memory is not needed by legitimate code
			prof.RWXSections = append(prof.RWXSections, name)
		}

		if prof.PackerHint == "" {
			lower := strings.ToLower(name)
			for hint, packer := range packerSectionHints {
				if strings.Contains(lower, hint) {
					prof.PackerHint = packer
					break
				}
			}
		}

		secData, err := sec.Data()
		if err != nil || len(secData) == 0 {
			continue
		}
		if int64(len(secData)) > MaxStaticReadBytes {
			secData = secData[:MaxStaticReadBytes]
		}
		ent := ShannonEntropy(secData)
		if ent > highEntropyThreshold {
			prof.HighEntropySections = append(prof.HighEntropySections, common.HighEntropySection{
				Name:    name,
				Entropy: ent,
				Size:    int64(len(secData)),
			})
		}
	}

	if syms, err := peFile.ImportedSymbols(); err == nil {
		for _, s := range syms {
			// debug/pe reports "Symbol:module.dll"
			idx := strings.IndexByte(s, ':')
			if idx <= 0 || idx >= len(s)-1 {
				continue
			}
			prof.Imports = append(prof.Imports, common.ImportRef{
				Symbol:          s[:idx],
				DeclaringModule: s[idx+1:],
			})
		}
	}
}

func exportCount(dataDir []pe.DataDirectory) int {
	if len(dataDir) <= pe.IMAGE_DIRECTORY_ENTRY_EXPORT {
		return 0
	}
	exp := dataDir[pe.IMAGE_DIRECTORY_ENTRY_EXPORT]
	if exp.VirtualAddress == 0 || exp.Size == 0 {
		return 0
	}
	// directory size is a rough proxy, the table itself is not walked
	return int(exp.Size / 4)
}

func parseELF(data []byte, prof *common.StructuralProfile) {
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return
	}
	defer ef.Close()

	prof.IsRecognizedFormat = true
	prof.Is64Bit = ef.Class == elf.ELFCLASS64
	prof.EntryPoint = ef.Entry
	prof.SectionCount = len(ef.Sections)

	for _, sec := range ef.Sections {
		if sec == nil || sec.Type == elf.SHT_NOBITS {
			continue
		}
		flags := sec.Flags
		if flags&elf.SHF_WRITE != 0 && flags&elf.SHF_EXECINSTR != 0 {
			prof.RWXSections = append(prof.RWXSections, sec.Name)
		}
		if sec.Size == 0 || sec.Size > MaxStaticReadBytes {
			continue
		}
		secData, err := sec.Data()
		if err != nil {
			continue
		}
		ent := ShannonEntropy(secData)
		if ent > highEntropyThreshold {
			prof.HighEntropySections = append(prof.HighEntropySections, common.HighEntropySection{
				Name:    sec.Name,
				Entropy: ent,
				Size:    int64(len(secData)),
			})
		}
	}

	if syms, err := ef.ImportedSymbols(); err == nil {
		for _, s := range syms {
			prof.Imports = append(prof.Imports, common.ImportRef{
				Symbol:          s.Name,
				DeclaringModule: s.Library,
			})
		}
	}
}

// Findings converts a profile into scoreable findings, naming the actual
// evidence so the final explanation stays actionable.
func Findings(prof *common.StructuralProfile) []common.Finding {
	if prof == nil || !prof.IsRecognizedFormat {
		return nil
	}
	var out []common.Finding
	for _, name := range prof.RWXSections {
		out = append(out, common.Finding{
			Title:    "RWX section: " + name,
			Detail:   "section is readable, writable and executable at once, strong self-modifying code indicator",
			Severity: common.SeverityHigh,
			Category: "structural",
		})
	}
	for _, hes := range prof.HighEntropySections {
		out = append(out, common.Finding{
			Title:    "High-entropy section: " + hes.Name,
			Detail:   "section entropy suggests packed or encrypted content",
			Severity: common.SeverityMedium,
			Category: "structural",
		})
	}
	if prof.PackerHint != "" {
		out = append(out, common.Finding{
			Title:    "Packer detected: " + prof.PackerHint,
			Detail:   "section names match a known executable packer",
			Severity: common.SeverityMedium,
			Category: "structural",
		})
	}
	out = append(out, SensitiveImportFindings(prof.Imports)...)
	return out
}
