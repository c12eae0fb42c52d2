package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/annel0/mmo-terrain/internal/terrain"
)

// Формат снимка (до сжатия):
//
//	magic "TRN1" | width uint16 | height uint16 | тайлы построчно
//	тайл: present uint8 | base uint8 | clearance uint8 | slope uint8 |
//	      water uint16 | surface uint8 | edge uint8
//
// Все числа big-endian. Биты наклона пишутся как есть.
var snapshotMagic = [4]byte{'T', 'R', 'N', '1'}

const tileRecordSize = 8

// ErrCorruptSnapshot: снимок повреждён или в чужом формате
var ErrCorruptSnapshot = errors.New("storage: повреждённый снимок")

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// EncodeGrid сериализует карту в сжатый снимок
func EncodeGrid(g *terrain.MemoryGrid) ([]byte, error) {
	if g.Width() > 0xFFFF || g.Height() > 0xFFFF {
		return nil, fmt.Errorf("карта %dx%d слишком большая для снимка", g.Width(), g.Height())
	}

	var buf bytes.Buffer
	buf.Grow(8 + g.Width()*g.Height()*tileRecordSize)
	buf.Write(snapshotMagic[:])

	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(g.Width()))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(g.Height()))
	buf.Write(hdr[:])

	var rec [tileRecordSize]byte
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			rec = [tileRecordSize]byte{}
			if t := g.TileAt(terrain.TileCoord{X: x, Y: y}); t != nil {
				rec[0] = 1
				rec[1] = t.BaseHeight
				rec[2] = t.ClearanceHeight
				rec[3] = uint8(t.Slope)
				binary.BigEndian.PutUint16(rec[4:6], t.WaterHeight)
				rec[6] = uint8(t.Surface)
				rec[7] = uint8(t.Edge)
			}
			buf.Write(rec[:])
		}
	}

	return encoder.EncodeAll(buf.Bytes(), nil), nil
}

// DecodeGrid восстанавливает карту из снимка
func DecodeGrid(data []byte) (*terrain.MemoryGrid, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	r := bytes.NewReader(raw)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != snapshotMagic {
		return nil, fmt.Errorf("%w: неверная сигнатура", ErrCorruptSnapshot)
	}

	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: нет заголовка", ErrCorruptSnapshot)
	}
	w := int(binary.BigEndian.Uint16(hdr[0:2]))
	h := int(binary.BigEndian.Uint16(hdr[2:4]))

	if r.Len() != w*h*tileRecordSize {
		return nil, fmt.Errorf("%w: ожидалось %d байт тайлов, получено %d", ErrCorruptSnapshot, w*h*tileRecordSize, r.Len())
	}

	g := terrain.NewMemoryGrid(w, h)
	var rec [tileRecordSize]byte
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if _, err := io.ReadFull(r, rec[:]); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
			}
			if rec[0] == 0 {
				continue
			}
			t := terrain.Tile{
				BaseHeight:      rec[1],
				ClearanceHeight: rec[2],
				Slope:           terrain.Slope(rec[3]),
				WaterHeight:     binary.BigEndian.Uint16(rec[4:6]),
				Surface:         terrain.SurfaceStyle(rec[6]),
				Edge:            terrain.EdgeStyle(rec[7]),
			}
			if err := g.Set(terrain.TileCoord{X: x, Y: y}, t); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}
