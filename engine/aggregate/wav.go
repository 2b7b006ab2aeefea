package aggregate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var errNotWav = errors.New("not a RIFF/WAVE container")

// wavDurationMillis reads the duration of a WAV clip from its container
// metadata: data-chunk byte length divided by the fmt-chunk byte rate. No
// sample data is decoded.
func wavDurationMillis(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var header [12]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return 0, errNotWav
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, errNotWav
	}

	var byteRate uint32
	var dataSize uint32
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			break
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			var body [16]byte
			if size < 16 {
				return 0, fmt.Errorf("wav: short fmt chunk (%d bytes)", size)
			}
			if _, err := io.ReadFull(f, body[:]); err != nil {
				return 0, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			byteRate = binary.LittleEndian.Uint32(body[8:12])
			if skip := int64(size) - 16; skip > 0 {
				if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
					return 0, err
				}
			}
		case "data":
			dataSize = size
		default:
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return 0, err
			}
		}

		if byteRate != 0 && dataSize != 0 {
			break
		}
		if id == "data" {
			// Skip past the data chunk to keep scanning for fmt if needed.
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				break
			}
		}
		// Chunks are word-aligned.
		if size%2 == 1 {
			if _, err := f.Seek(1, io.SeekCurrent); err != nil {
				break
			}
		}
	}

	if byteRate == 0 || dataSize == 0 {
		return 0, fmt.Errorf("wav: missing fmt or data chunk")
	}
	return int64(dataSize) * 1000 / int64(byteRate), nil
}
