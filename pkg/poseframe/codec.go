package poseframe

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	pkgerrors "github.com/pkg/errors"
)

// Magic prefixes every encoded recording.
const Magic = "PFR1"

const (
	flagRotation byte = 1 << iota
	flagPosition
)

// preallocation cap so a corrupt count cannot force a huge allocation
const maxPrealloc = 1 << 16

// Encode writes p to w in the .pfr binary format.
//
// Layout (big-endian): magic, uint32 tracker count, then per tracker the
// name and role as uint16-length-prefixed strings, a uint32 frame count and
// per frame one flag byte followed by rotation (w, x, y, z) and position
// (x, y, z) as float64.
func Encode(w io.Writer, p *PoseFrames) error {
	if p == nil {
		return pkgerrors.New("nil recording")
	}
	bw := bufio.NewWriter(w)
	enc := &encoder{w: bw}

	enc.bytes([]byte(Magic))
	enc.u32(uint32(len(p.Trackers)))
	for _, t := range p.Trackers {
		enc.str(t.Name)
		enc.str(string(t.Role))
		enc.u32(uint32(len(t.Frames)))
		for _, f := range t.Frames {
			var flags byte
			if f.HasRotation {
				flags |= flagRotation
			}
			if f.HasPosition {
				flags |= flagPosition
			}
			enc.bytes([]byte{flags})
			enc.f64(f.Rotation.Real, f.Rotation.Imag, f.Rotation.Jmag, f.Rotation.Kmag)
			enc.f64(f.Position.X, f.Position.Y, f.Position.Z)
		}
	}
	if enc.err != nil {
		return pkgerrors.Wrap(enc.err, "failed to encode recording")
	}
	return pkgerrors.Wrap(bw.Flush(), "failed to flush recording")
}

// Decode reads one recording from r.
func Decode(r io.Reader) (*PoseFrames, error) {
	dec := &decoder{r: bufio.NewReader(r)}

	magic := dec.bytes(len(Magic))
	if dec.err != nil {
		return nil, pkgerrors.Wrap(dec.err, "failed to read header")
	}
	if string(magic) != Magic {
		return nil, ErrBadMagic
	}

	n := dec.u32()
	p := &PoseFrames{Trackers: make([]*Tracker, 0, min(int(n), maxPrealloc))}
	for i := uint32(0); i < n && dec.err == nil; i++ {
		t := &Tracker{Name: dec.str(), Role: TrackerRole(dec.str())}
		fc := dec.u32()
		t.Frames = make([]Frame, 0, min(int(fc), maxPrealloc))
		for j := uint32(0); j < fc && dec.err == nil; j++ {
			flags := dec.bytes(1)
			v := dec.f64s(7)
			if dec.err != nil {
				break
			}
			f := Frame{
				HasRotation: flags[0]&flagRotation != 0,
				HasPosition: flags[0]&flagPosition != 0,
			}
			f.Rotation.Real, f.Rotation.Imag, f.Rotation.Jmag, f.Rotation.Kmag = v[0], v[1], v[2], v[3]
			f.Position.X, f.Position.Y, f.Position.Z = v[4], v[5], v[6]
			t.Frames = append(t.Frames, f)
		}
		p.Trackers = append(p.Trackers, t)
	}
	if dec.err != nil {
		return nil, pkgerrors.Wrap(dec.err, "failed to decode recording")
	}
	return p, nil
}

type encoder struct {
	w   io.Writer
	err error
	buf [8]byte
}

func (e *encoder) bytes(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) u32(v uint32) {
	binary.BigEndian.PutUint32(e.buf[:4], v)
	e.bytes(e.buf[:4])
}

func (e *encoder) str(s string) {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	binary.BigEndian.PutUint16(e.buf[:2], uint16(len(s)))
	e.bytes(e.buf[:2])
	e.bytes([]byte(s))
}

func (e *encoder) f64(vs ...float64) {
	for _, v := range vs {
		binary.BigEndian.PutUint64(e.buf[:], math.Float64bits(v))
		e.bytes(e.buf[:])
	}
}

type decoder struct {
	r   io.Reader
	err error
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return make([]byte, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = err
	}
	return b
}

func (d *decoder) u32() uint32 {
	return binary.BigEndian.Uint32(d.bytes(4))
}

func (d *decoder) str() string {
	n := binary.BigEndian.Uint16(d.bytes(2))
	return string(d.bytes(int(n)))
}

func (d *decoder) f64s(n int) []float64 {
	b := d.bytes(8 * n)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.BigEndian.Uint64(b[8*i:]))
	}
	return out
}
