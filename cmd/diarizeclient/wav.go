package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// wavAudio is the PCM payload of a WAV file.
type wavAudio struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Data          []byte
}

// readWAV walks the RIFF chunks of r and returns the fmt and data chunks.
// Only uncompressed PCM is accepted.
func readWAV(r io.Reader) (*wavAudio, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	var out wavAudio
	var haveFmt bool
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("no data chunk")
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, errors.New("fmt chunk too short")
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != 1 {
				return nil, fmt.Errorf("unsupported WAV format %d, only PCM", format)
			}
			out.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			out.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			out.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
			if size%2 == 1 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return nil, fmt.Errorf("read fmt chunk: %w", err)
				}
			}
		case "data":
			if !haveFmt {
				return nil, errors.New("data chunk before fmt chunk")
			}
			out.Data = make([]byte, size)
			n, err := io.ReadFull(r, out.Data)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("read data chunk: %w", err)
			}
			// Streamed WAVs may carry a bogus data size.
			out.Data = out.Data[:n-n%2]
			return &out, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// window is one slice of the file posted as a single diarize request.
type window struct {
	StartMs int64
	EndMs   int64
	PCM     []byte
}

// splitWindows cuts 16-bit mono PCM into windows of windowMs. The last window
// may be shorter.
func splitWindows(pcm []byte, sampleRate int, windowMs int64) []window {
	bytesPerMs := int64(sampleRate) * 2 / 1000
	step := max(windowMs*bytesPerMs, 2)
	step -= step % 2

	var out []window
	for off := int64(0); off < int64(len(pcm)); off += step {
		end := min(off+step, int64(len(pcm)))
		startMs := off * 1000 / (int64(sampleRate) * 2)
		endMs := end * 1000 / (int64(sampleRate) * 2)
		out = append(out, window{StartMs: startMs, EndMs: endMs, PCM: pcm[off:end]})
	}
	return out
}
