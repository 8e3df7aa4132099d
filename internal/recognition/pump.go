package recognition

import (
	"errors"
	"io"
)

// Pump reads fixed-size chunks from audio and hands a private copy of each
// to send until audio reports EOF or send fails.
func Pump(audio io.Reader, chunkSize int, send func(chunk []byte) error) error {
	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if sendErr := send(chunk); sendErr != nil {
				return sendErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
