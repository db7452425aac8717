package wire

import (
	"github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/planner"
)

// LocateOpcode reads the opcode of a received request. A constant location
// is read directly. A scanned location walks the flexpage list in 8-byte
// steps to the zero delimiter and reads the opcode right after it.
//
// Messages without flexpages hold the opcode at 0 even in a scanned flow;
// receivers learn from the message tag whether flexpages arrived and pass
// the zero location in that case.
func LocateOpcode(buf []byte, loc planner.OpcodeLocation, size uint32) (uint64, uint32, error) {
	at := loc.Offset
	if loc.Scan {
		var ok bool
		if at, ok = scanDelimiter(buf); !ok {
			return 0, 0, errors.InvalidData(errors.PhaseUnmarshal, nil, "flexpage list is not terminated")
		}
	}
	end := uint64(at) + uint64(size)
	if end > uint64(len(buf)) {
		return 0, 0, errors.OutOfBounds(errors.PhaseUnmarshal, nil, int(end), len(buf))
	}
	return getUint(buf[at:end], size), at, nil
}

// scanDelimiter returns the offset following the first all-zero 8-byte
// step. A flexpage descriptor word is never zero, so no entry of the list
// can pass for the delimiter.
func scanDelimiter(buf []byte) (uint32, bool) {
	const step = planner.FlexpageDelimiter
	for at := 0; at+step <= len(buf); at += step {
		if order.Uint64(buf[at:at+step]) == 0 {
			return uint32(at + step), true
		}
	}
	return 0, false
}
