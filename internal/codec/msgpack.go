package codec

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// addrExtID is the msgpack extension type for Addr. Registering it lets
// addresses survive generic map round-trips through snapshot files and
// aggregation keys without collapsing into plain maps.
const addrExtID = 1

// The encoder and decoder are registered for the value type, not a
// pointer: addresses live as interface values inside documents, and the
// Marshaler route would demand an addressable value there.
func init() {
	msgpack.RegisterExtEncoder(addrExtID, Addr{}, encodeAddrExt)
	msgpack.RegisterExtDecoder(addrExtID, Addr{}, decodeAddrExt)
}

// encodeAddrExt emits the address as 16 big-endian bytes.
func encodeAddrExt(_ *msgpack.Encoder, v reflect.Value) ([]byte, error) {
	a, ok := v.Interface().(Addr)
	if !ok {
		return nil, fmt.Errorf("%w: cannot encode %s", ErrBadAddress, v.Type())
	}
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], a.Hi)
	binary.BigEndian.PutUint64(b[8:], a.Lo)
	return b[:], nil
}

// decodeAddrExt reads the 16-byte big-endian form back into v.
func decodeAddrExt(d *msgpack.Decoder, v reflect.Value, extLen int) error {
	if extLen != 16 {
		return fmt.Errorf("%w: %d-byte payload", ErrBadAddress, extLen)
	}
	b := make([]byte, 16)
	if err := d.ReadFull(b); err != nil {
		return err
	}
	v.Set(reflect.ValueOf(Addr{
		Hi: binary.BigEndian.Uint64(b[:8]),
		Lo: binary.BigEndian.Uint64(b[8:]),
	}))
	return nil
}
