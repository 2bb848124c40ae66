package attendancetest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/require"
)

// BIFF8 record ids.
const (
	recBOF        = 0x0809
	recEOF        = 0x000A
	recBoundSheet = 0x0085
	recSST        = 0x00FC
	recRow        = 0x0208
	recLabelSST   = 0x00FD
)

// Compound file constants.
const (
	sectorSize    = 512
	miniCutoff    = 4096
	endOfChain    = 0xFFFFFFFE
	freeSector    = 0xFFFFFFFF
	fatSector     = 0xFFFFFFFD
	noStream      = 0xFFFFFFFF
	maxDataSector = sectorSize/4 - 2
)

// WriteLegacyWorkbook saves rows as text cells on the only sheet of a BIFF8
// (.xls) workbook under t.TempDir and returns its path. Empty strings are left
// as missing cells.
func WriteLegacyWorkbook(t *testing.T, rows ...[]string) string {
	t.Helper()

	stream := biffWorkbook(t, rows)
	require.LessOrEqual(t, len(stream), maxDataSector*sectorSize, "fixture too large")

	path := filepath.Join(t.TempDir(), "attendance.xls")
	require.NoError(t, os.WriteFile(path, compoundFile(stream), 0o600))
	return path
}

func biffWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()

	sst := map[string]uint32{}
	var strs []string
	total := 0
	for _, row := range rows {
		for _, cell := range row {
			if cell == "" {
				continue
			}
			total++
			if _, ok := sst[cell]; !ok {
				sst[cell] = uint32(len(strs))
				strs = append(strs, cell)
			}
		}
	}

	var globals bytes.Buffer
	writeRecord(&globals, recBOF, bofData(0x0005))

	// The sheet offset is patched once the globals are complete.
	sheetName := []byte("Sheet1")
	bs := make([]byte, 0, 8+len(sheetName))
	bs = binary.LittleEndian.AppendUint32(bs, 0)
	bs = append(bs, 0, 0, byte(len(sheetName)), 0)
	bs = append(bs, sheetName...)
	boundSheetAt := globals.Len() + 4
	writeRecord(&globals, recBoundSheet, bs)

	sstData := binary.LittleEndian.AppendUint32(nil, uint32(total))
	sstData = binary.LittleEndian.AppendUint32(sstData, uint32(len(strs)))
	for _, s := range strs {
		sstData = appendUnicodeString(sstData, s)
	}
	require.LessOrEqual(t, len(sstData), 8224, "shared strings need a CONTINUE record")
	writeRecord(&globals, recSST, sstData)
	writeRecord(&globals, recEOF, nil)

	out := globals.Bytes()
	binary.LittleEndian.PutUint32(out[boundSheetAt:], uint32(len(out)))

	var sheet bytes.Buffer
	writeRecord(&sheet, recBOF, bofData(0x0010))
	for r, row := range rows {
		first, last := -1, -1
		for c, cell := range row {
			if cell == "" {
				continue
			}
			if first < 0 {
				first = c
			}
			last = c
		}
		if first < 0 {
			continue
		}
		info := make([]byte, 16)
		binary.LittleEndian.PutUint16(info[0:], uint16(r))
		binary.LittleEndian.PutUint16(info[2:], uint16(first))
		binary.LittleEndian.PutUint16(info[4:], uint16(last+1))
		binary.LittleEndian.PutUint16(info[6:], 0x00FF)
		binary.LittleEndian.PutUint32(info[12:], 0x00000100)
		writeRecord(&sheet, recRow, info)

		for c, cell := range row {
			if cell == "" {
				continue
			}
			lbl := make([]byte, 10)
			binary.LittleEndian.PutUint16(lbl[0:], uint16(r))
			binary.LittleEndian.PutUint16(lbl[2:], uint16(c))
			binary.LittleEndian.PutUint16(lbl[4:], 0x000F)
			binary.LittleEndian.PutUint32(lbl[6:], sst[cell])
			writeRecord(&sheet, recLabelSST, lbl)
		}
	}
	writeRecord(&sheet, recEOF, nil)

	out = append(out, sheet.Bytes()...)

	// Streams under the cutoff live in the mini stream; pad past it so the
	// workbook is stored in regular sectors.
	size := len(out)
	if size < miniCutoff {
		size = miniCutoff
	}
	if rem := size % sectorSize; rem != 0 {
		size += sectorSize - rem
	}
	return append(out, make([]byte, size-len(out))...)
}

func bofData(kind uint16) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint16(b[0:], 0x0600)
	binary.LittleEndian.PutUint16(b[2:], kind)
	binary.LittleEndian.PutUint16(b[4:], 0x0DBB)
	binary.LittleEndian.PutUint16(b[6:], 0x07CC)
	binary.LittleEndian.PutUint32(b[12:], 0x00000006)
	return b
}

func writeRecord(buf *bytes.Buffer, id uint16, data []byte) {
	var hdr [4]byte
	binary.LittleEndian.PutUint16(hdr[0:], id)
	binary.LittleEndian.PutUint16(hdr[2:], uint16(len(data)))
	buf.Write(hdr[:])
	buf.Write(data)
}

// appendUnicodeString appends s as an XLUnicodeString: Latin-1 text is stored
// compressed, anything else as UTF-16LE.
func appendUnicodeString(b []byte, s string) []byte {
	units := utf16.Encode([]rune(s))
	wide := false
	for _, u := range units {
		if u > 0xFF {
			wide = true
			break
		}
	}

	b = binary.LittleEndian.AppendUint16(b, uint16(len(units)))
	if !wide {
		b = append(b, 0)
		for _, u := range units {
			b = append(b, byte(u))
		}
		return b
	}
	b = append(b, 1)
	for _, u := range units {
		b = binary.LittleEndian.AppendUint16(b, u)
	}
	return b
}

// compoundFile wraps stream as the "Workbook" entry of a version 3 compound
// file. Sector 0 holds the FAT, sector 1 the directory and the stream follows.
func compoundFile(stream []byte) []byte {
	le := binary.LittleEndian
	n := len(stream) / sectorSize

	hdr := make([]byte, sectorSize)
	copy(hdr, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	le.PutUint16(hdr[0x18:], 0x003E)
	le.PutUint16(hdr[0x1A:], 0x0003)
	le.PutUint16(hdr[0x1C:], 0xFFFE)
	le.PutUint16(hdr[0x1E:], 9)
	le.PutUint16(hdr[0x20:], 6)
	le.PutUint32(hdr[0x2C:], 1)
	le.PutUint32(hdr[0x30:], 1)
	le.PutUint32(hdr[0x38:], miniCutoff)
	le.PutUint32(hdr[0x3C:], endOfChain)
	le.PutUint32(hdr[0x44:], endOfChain)
	le.PutUint32(hdr[0x4C:], 0)
	for i := 1; i < 109; i++ {
		le.PutUint32(hdr[0x4C+4*i:], freeSector)
	}

	fat := make([]byte, sectorSize)
	for i := 0; i < sectorSize/4; i++ {
		le.PutUint32(fat[4*i:], freeSector)
	}
	le.PutUint32(fat[0:], fatSector)
	le.PutUint32(fat[4:], endOfChain)
	for i := 0; i < n; i++ {
		next := uint32(3 + i)
		if i == n-1 {
			next = endOfChain
		}
		le.PutUint32(fat[4*(2+i):], next)
	}

	dir := make([]byte, sectorSize)
	dirEntry(dir[0:128], "Root Entry", 5, 1, endOfChain, 0)
	dirEntry(dir[128:256], "Workbook", 2, noStream, 2, uint32(len(stream)))

	out := make([]byte, 0, 3*sectorSize+len(stream))
	out = append(out, hdr...)
	out = append(out, fat...)
	out = append(out, dir...)
	return append(out, stream...)
}

func dirEntry(b []byte, name string, kind byte, child, start, size uint32) {
	le := binary.LittleEndian
	units := utf16.Encode([]rune(name))
	for i, u := range units {
		le.PutUint16(b[2*i:], u)
	}
	le.PutUint16(b[64:], uint16(2*(len(units)+1)))
	b[66] = kind
	b[67] = 1
	le.PutUint32(b[68:], noStream)
	le.PutUint32(b[72:], noStream)
	le.PutUint32(b[76:], child)
	le.PutUint32(b[116:], start)
	le.PutUint32(b[120:], size)
}
