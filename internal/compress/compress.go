// Package compress encodes and decodes stored log payloads.
package compress

import (
	"bytes"
	"io"
	"strings"

	"github.com/hyp3rd/ewrap"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"perfstore/internal/sentinel"
)

// Format is the compression format of a payload.
type Format string

const (
	Raw  Format = "RAW"
	Zip  Format = "ZIP"
	Zstd Format = "ZSTD"
	XZ   Format = "XZ"
)

// zipEntry is the name of the single entry of a ZIP payload.
const zipEntry = "1"

var (
	zipMagic  = []byte{0x50, 0x4b, 0x03, 0x04}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	xzMagic   = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

// Formats lists the supported formats.
var Formats = []Format{Raw, Zip, Zstd, XZ}

// ParseFormat accepts a format name in any case. An empty name means Raw.
func ParseFormat(name string) (Format, error) {
	if name == "" {
		return Raw, nil
	}

	f := Format(strings.ToUpper(name))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}

	return "", ewrap.Wrapf(sentinel.ErrUnsupportedFormat, "compression format %q", name)
}

// Detect guesses the format from the leading magic bytes; anything else is Raw.
func Detect(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return Zip
	case bytes.HasPrefix(data, zstdMagic):
		return Zstd
	case bytes.HasPrefix(data, xzMagic):
		return XZ
	default:
		return Raw
	}
}

// Payload is a possibly compressed blob together with its decoded length.
type Payload struct {
	Data           []byte
	Format         Format
	OriginalLength int
}

// NewPayload compresses data with format.
func NewPayload(format Format, data []byte) (*Payload, error) {
	encoded, err := Compress(format, data)
	if err != nil {
		return nil, err
	}

	return &Payload{Data: encoded, Format: format, OriginalLength: len(data)}, nil
}

// Bytes decodes the payload.
func (p *Payload) Bytes() ([]byte, error) {
	return Decompress(p.Format, p.Data, p.OriginalLength)
}

// Compress encodes data with format.
func Compress(format Format, data []byte) ([]byte, error) {
	switch format {
	case Raw, "":
		return data, nil
	case Zip:
		return zipBytes(data)
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, ewrap.Wrap(err, "create zstd encoder")
		}
		defer enc.Close()

		return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	case XZ:
		var buf bytes.Buffer

		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, ewrap.Wrap(err, "create xz writer")
		}

		if _, err := w.Write(data); err != nil {
			return nil, ewrap.Wrap(err, "xz compress")
		}

		if err := w.Close(); err != nil {
			return nil, ewrap.Wrap(err, "close xz writer")
		}

		return buf.Bytes(), nil
	default:
		return nil, ewrap.Wrapf(sentinel.ErrUnsupportedFormat, "compression format %q", format)
	}
}

// Decompress decodes data. originalLength, when positive, sizes the output buffer.
func Decompress(format Format, data []byte, originalLength int) ([]byte, error) {
	var (
		r   io.Reader
		err error
	)

	switch format {
	case Raw, "":
		return data, nil
	case Zip:
		r, err = unzipReader(data)
	case Zstd:
		dec, derr := zstd.NewReader(nil)
		if derr != nil {
			return nil, ewrap.Wrap(derr, "create zstd decoder")
		}
		defer dec.Close()

		out, derr := dec.DecodeAll(data, make([]byte, 0, max(originalLength, 0)))
		if derr != nil {
			return nil, ewrap.Wrap(derr, "zstd decompress")
		}

		return out, nil
	case XZ:
		r, err = xz.NewReader(bytes.NewReader(data))
	default:
		return nil, ewrap.Wrapf(sentinel.ErrUnsupportedFormat, "compression format %q", format)
	}

	if err != nil {
		return nil, ewrap.Wrapf(err, "open %s payload", format)
	}

	var buf bytes.Buffer
	buf.Grow(max(originalLength, 0))

	if _, err := io.Copy(&buf, r); err != nil {
		return nil, ewrap.Wrapf(err, "decompress %s payload", format)
	}

	return buf.Bytes(), nil
}

func zipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	w, err := zw.Create(zipEntry)
	if err != nil {
		return nil, ewrap.Wrap(err, "create zip entry")
	}

	if _, err := w.Write(data); err != nil {
		return nil, ewrap.Wrap(err, "zip compress")
	}

	if err := zw.Close(); err != nil {
		return nil, ewrap.Wrap(err, "close zip writer")
	}

	return buf.Bytes(), nil
}

func unzipReader(data []byte) (io.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	if len(zr.File) == 0 {
		return nil, ewrap.New("zip payload has no entry")
	}

	// the entry reader verifies the checksum once it reaches EOF
	return zr.File[0].Open()
}
