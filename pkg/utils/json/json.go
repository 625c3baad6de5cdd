// Package json routes JSON serialization through sonic on the architectures
// sonic supports (amd64, arm64) and through encoding/json everywhere else.
// Callers use the package-level function vars and never branch on GOARCH.
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

var (
	// Marshal encodes v into JSON bytes.
	Marshal func(v any) ([]byte, error)

	// Unmarshal decodes JSON bytes into v.
	Unmarshal func(data []byte, v any) error

	// NewEncoder creates a JSON encoder writing to w.
	NewEncoder func(w io.Writer) Encoder

	// NewDecoder creates a JSON decoder reading from r.
	NewDecoder func(r io.Reader) Decoder

	usingSonic bool
)

// Encoder encodes values to a stream.
type Encoder interface {
	Encode(v any) error
}

// Decoder decodes values from a stream.
type Decoder interface {
	Decode(v any) error
}

func init() {
	usingSonic = runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
	if usingSonic {
		bindSonic()
		return
	}
	bindStdlib()
}

func bindSonic() {
	api := sonic.ConfigDefault
	Marshal = api.Marshal
	Unmarshal = api.Unmarshal
	NewEncoder = func(w io.Writer) Encoder { return api.NewEncoder(w) }
	NewDecoder = func(r io.Reader) Decoder { return api.NewDecoder(r) }
}

func bindStdlib() {
	Marshal = stdjson.Marshal
	Unmarshal = stdjson.Unmarshal
	NewEncoder = func(w io.Writer) Encoder { return stdjson.NewEncoder(w) }
	NewDecoder = func(r io.Reader) Decoder { return stdjson.NewDecoder(r) }
}

// IsUsingSonic reports whether sonic backs the package-level functions.
func IsUsingSonic() bool {
	return usingSonic
}
