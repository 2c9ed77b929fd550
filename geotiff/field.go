package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	tASCII  = 2
	tShort  = 3
	tLong   = 4
	tDouble = 12
	tLong8  = 16
)

// tagData accumulates the values that do not fit inside their directory
// entry, Offset being the file offset of the first byte of the buffer.
type tagData struct {
	bytes.Buffer
	Offset uint64
}

func (t *tagData) NextOffset() uint64 {
	return t.Offset + uint64(t.Buffer.Len())
}

// entry is a directory entry. Values of strile entries that do not fit
// inline go to the strile area rather than next to the directory.
type entry struct {
	tag    uint16
	data   interface{}
	strile bool
}

type encoder struct {
	enc     binary.ByteOrder
	bigtiff bool
}

func (e encoder) headerSize() uint64 {
	if e.bigtiff {
		return 16
	}
	return 8
}

func (e encoder) entrySize() uint64 {
	if e.bigtiff {
		return 20
	}
	return 12
}

// tableSize is the size of a directory of n entries, entry count and next
// directory offset included.
func (e encoder) tableSize(n int) uint64 {
	if e.bigtiff {
		return 8 + uint64(n)*20 + 8
	}
	return 2 + uint64(n)*12 + 4
}

func (e encoder) inline() int {
	if e.bigtiff {
		return 8
	}
	return 4
}

// value encodes data and returns its field type and count.
func (e encoder) value(data interface{}) (uint16, uint64, []byte) {
	switch d := data.(type) {
	case string:
		b := append([]byte(d), 0)
		return tASCII, uint64(len(b)), b
	case []uint16:
		b := make([]byte, 2*len(d))
		for i, v := range d {
			e.enc.PutUint16(b[2*i:], v)
		}
		return tShort, uint64(len(d)), b
	case []uint32:
		b := make([]byte, 4*len(d))
		for i, v := range d {
			e.enc.PutUint32(b[4*i:], v)
		}
		return tLong, uint64(len(d)), b
	case []uint64:
		b := make([]byte, 8*len(d))
		for i, v := range d {
			e.enc.PutUint64(b[8*i:], v)
		}
		return tLong8, uint64(len(d)), b
	case []float64:
		b := make([]byte, 8*len(d))
		for i, v := range d {
			e.enc.PutUint64(b[8*i:], math.Float64bits(v))
		}
		return tDouble, uint64(len(d)), b
	default:
		panic(fmt.Errorf("unsupported tag value type %T", data))
	}
}

// outOfLine returns the number of bytes data occupies outside of its entry,
// padded to an even count.
func (e encoder) outOfLine(data interface{}) uint64 {
	_, _, b := e.value(data)
	if len(b) <= e.inline() {
		return 0
	}
	return uint64(len(b) + len(b)%2)
}

func (e encoder) writeEntry(w io.Writer, tag uint16, data interface{}, overflow *tagData) error {
	typ, count, b := e.value(data)
	buf := make([]byte, e.entrySize())
	e.enc.PutUint16(buf[0:], tag)
	e.enc.PutUint16(buf[2:], typ)
	val := buf[8:]
	if e.bigtiff {
		e.enc.PutUint64(buf[4:], count)
		val = buf[12:]
	} else {
		e.enc.PutUint32(buf[4:], uint32(count))
	}
	if len(b) <= len(val) {
		copy(val, b)
	} else {
		if e.bigtiff {
			e.enc.PutUint64(val, overflow.NextOffset())
		} else {
			e.enc.PutUint32(val, uint32(overflow.NextOffset()))
		}
		overflow.Write(b)
		if len(b)%2 == 1 {
			overflow.WriteByte(0)
		}
	}
	_, err := w.Write(buf)
	return err
}

func (e encoder) writeHeader(w io.Writer, ifdOffset uint64) error {
	buf := make([]byte, e.headerSize())
	if e.enc == binary.LittleEndian {
		copy(buf, "II")
	} else {
		copy(buf, "MM")
	}
	if e.bigtiff {
		e.enc.PutUint16(buf[2:], 43)
		e.enc.PutUint16(buf[4:], 8)
		e.enc.PutUint64(buf[8:], ifdOffset)
	} else {
		e.enc.PutUint16(buf[2:], 42)
		e.enc.PutUint32(buf[4:], uint32(ifdOffset))
	}
	_, err := w.Write(buf)
	return err
}
