package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/spectrum"
	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// File layout:
//
//	magic      [4]byte  "SPEC"
//	version    uint8
//	compression uint8
//	size       uint32   uncompressed body length, big endian
//	digest     [32]byte BLAKE3 of the uncompressed body
//	body       CBOR (possibly compressed)
const (
	formatVersion = 1
	headerSize    = 4 + 1 + 1 + 4 + blake3Size
	blake3Size    = 32
)

var magic = [4]byte{'S', 'P', 'E', 'C'}

// body is the CBOR payload of a spectrum file
type body struct {
	Wavelengths []float64 `cbor:"1,keyasint"`
	Values      []float64 `cbor:"2,keyasint"`
	Errors      []float64 `cbor:"3,keyasint,omitempty"`
	Metadata    []entry   `cbor:"4,keyasint,omitempty"`
}

// entry is one metadata value. The kind travels explicitly so that a
// number like 5000.0 never comes back as a string or an integer.
type entry struct {
	Name string   `cbor:"1,keyasint"`
	Num  *float64 `cbor:"2,keyasint,omitempty"`
	Str  *string  `cbor:"3,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: math.MaxInt32,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// errFormat marks payloads that are not spectrum files at all
var errFormat = errors.New("not a spectrum file")

// encode renders s as a complete spectrum file
func encode(s *spectrum.Spectrum, c Compression) ([]byte, error) {
	b := body{
		Wavelengths: s.Wavelengths,
		Values:      s.Values,
		Errors:      s.ValueErrors,
	}
	for _, name := range s.Metadata.Keys() {
		v := s.Metadata[name]
		e := entry{Name: name}
		if f, ok := v.Float(); ok && v.IsNum() {
			e.Num = &f
		} else {
			text := v.Text()
			e.Str = &text
		}
		b.Metadata = append(b.Metadata, e)
	}

	raw, err := encMode.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode spectrum: %w", err)
	}
	if len(raw) > maxBodySize {
		return nil, fmt.Errorf("spectrum body of %d bytes is too large", len(raw))
	}

	payload, err := compress(raw, c)
	if errors.Is(err, errIncompressible) {
		payload, c = raw, CompressionNone
	} else if err != nil {
		return nil, err
	}

	digest := blake3.Sum256(raw)

	var buf bytes.Buffer
	buf.Grow(headerSize + len(payload))
	buf.Write(magic[:])
	buf.WriteByte(formatVersion)
	buf.WriteByte(byte(c))
	binary.Write(&buf, binary.BigEndian, uint32(len(raw)))
	buf.Write(digest[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// header is the fixed prefix of a spectrum file
type header struct {
	Compression Compression
	Size        int
	Digest      [blake3Size]byte
}

func parseHeader(data []byte) (header, error) {
	var h header
	if len(data) < headerSize || !bytes.Equal(data[:4], magic[:]) {
		return h, errFormat
	}
	if data[4] != formatVersion {
		return h, fmt.Errorf("unsupported format version %d", data[4])
	}
	h.Compression = Compression(data[5])
	h.Size = int(binary.BigEndian.Uint32(data[6:10]))
	copy(h.Digest[:], data[10:headerSize])
	return h, nil
}

// decode parses a complete spectrum file and verifies its digest
func decode(data []byte) (*spectrum.Spectrum, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	raw, err := decompress(data[headerSize:], h.Compression, h.Size)
	if err != nil {
		return nil, err
	}
	if blake3.Sum256(raw) != h.Digest {
		return nil, fmt.Errorf("checksum mismatch")
	}

	var b body
	if err := decMode.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("failed to decode spectrum: %w", err)
	}

	s := &spectrum.Spectrum{
		Wavelengths: b.Wavelengths,
		Values:      b.Values,
		ValueErrors: b.Errors,
	}
	if len(b.Metadata) > 0 {
		s.Metadata = make(meta.Map, len(b.Metadata))
		for _, e := range b.Metadata {
			switch {
			case e.Num != nil:
				s.Metadata[e.Name] = meta.Num(*e.Num)
			case e.Str != nil:
				s.Metadata[e.Name] = meta.Str(*e.Str)
			default:
				return nil, fmt.Errorf("metadata field %q has no value", e.Name)
			}
		}
	}
	return s, nil
}
