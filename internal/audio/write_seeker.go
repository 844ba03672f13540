package audio

import (
	"errors"
	"io"
)

// writeSeeker - in-memory io.WriteSeeker для wav.Encoder, которому нужен seek
// назад для дозаписи размеров в заголовок.
type writeSeeker struct {
	buf []byte
	pos int
}

func newWriteSeeker() *writeSeeker {
	return &writeSeeker{}
}

func (ws *writeSeeker) Write(p []byte) (int, error) {
	if need := ws.pos + len(p); need > len(ws.buf) {
		grown := make([]byte, need)
		copy(grown, ws.buf)
		ws.buf = grown
	}
	copy(ws.buf[ws.pos:], p)
	ws.pos += len(p)
	return len(p), nil
}

func (ws *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = ws.pos + int(offset)
	case io.SeekEnd:
		next = len(ws.buf) + int(offset)
	default:
		return 0, errors.New("writeSeeker: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("writeSeeker: negative position")
	}
	ws.pos = next
	return int64(next), nil
}

func (ws *writeSeeker) Bytes() []byte {
	return ws.buf
}
