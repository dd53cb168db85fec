// Package audio handles the small amount of audio plumbing the server owns:
// reading reference clips from disk, encoding synthesized PCM as WAV for the
// browser, and concatenating segment audio. All DSP (silence removal,
// cross-fading, resampling) belongs to the synthesis collaborator.
package audio

import (
	"fmt"
	"io"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/zaf/g711"

	"github.com/Metantrop-IA/Mnemosynth/core"
)

// WAV fmt chunk audio format codes.
const (
	wavFormatPCM  = 1
	wavFormatALaw = 6
	wavFormatULaw = 7
)

// ReadWAV loads a WAV file into a linear 16-bit PCM chunk. Telephone-format
// clips (μ-law / A-law, common for call-recording exports) are expanded to
// linear PCM so every reference voice reaches the synthesizer in one format.
func ReadWAV(path string) (core.AudioChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.AudioChunk{}, fmt.Errorf("read wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if dec.Err() != nil {
		return core.AudioChunk{}, fmt.Errorf("read wav %s: %w", path, dec.Err())
	}

	switch dec.WavAudioFormat {
	case wavFormatALaw, wavFormatULaw:
		return readCompanded(dec, path)
	case wavFormatPCM:
		// handled below
	default:
		return core.AudioChunk{}, fmt.Errorf("read wav %s: unsupported audio format %d", path, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return core.AudioChunk{}, fmt.Errorf("read wav %s: %w", path, err)
	}

	data := make([]byte, 0, len(buf.Data)*2)
	for _, s := range buf.Data {
		v := int16(s)
		data = append(data, byte(v), byte(v>>8))
	}
	return core.AudioChunk{
		Data:       data,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		Format:     core.PCM,
	}, nil
}

// readCompanded expands a μ-law or A-law data chunk to linear PCM.
func readCompanded(dec *wav.Decoder, path string) (core.AudioChunk, error) {
	if err := dec.FwdToPCM(); err != nil {
		return core.AudioChunk{}, fmt.Errorf("read wav %s: %w", path, err)
	}
	raw, err := io.ReadAll(dec.PCMChunk)
	if err != nil {
		return core.AudioChunk{}, fmt.Errorf("read wav %s: %w", path, err)
	}

	var data []byte
	if dec.WavAudioFormat == wavFormatULaw {
		data = g711.DecodeUlaw(raw)
	} else {
		data = g711.DecodeAlaw(raw)
	}
	return core.AudioChunk{
		Data:       data,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		Format:     core.PCM,
	}, nil
}

// EncodeWAV renders a PCM chunk as an in-memory WAV file, ready to hand to
// the browser as one binary frame.
func EncodeWAV(chunk core.AudioChunk) ([]byte, error) {
	if chunk.Format != core.PCM {
		return nil, fmt.Errorf("encode wav: only linear PCM chunks are supported")
	}
	if chunk.SampleRate == 0 || chunk.Channels == 0 {
		return nil, fmt.Errorf("encode wav: chunk missing sample rate or channel count")
	}

	samples := make([]int, len(chunk.Data)/2)
	for i := range samples {
		samples[i] = int(int16(chunk.Data[2*i]) | int16(chunk.Data[2*i+1])<<8)
	}

	buf := &writeSeekBuffer{}
	enc := wav.NewEncoder(buf, chunk.SampleRate, 16, chunk.Channels, wavFormatPCM)
	if err := enc.Write(&gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: chunk.Channels, SampleRate: chunk.SampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	return buf.Bytes(), nil
}

// Concat joins PCM chunks end to end. All chunks must agree on sample rate
// and channel count; the synthesizer emits every segment at its fixed output
// rate so mismatches indicate a collaborator bug.
func Concat(chunks []core.AudioChunk) (core.AudioChunk, error) {
	var out core.AudioChunk
	for _, c := range chunks {
		if c.IsEmpty() {
			continue
		}
		if out.IsEmpty() {
			out = core.AudioChunk{
				SampleRate: c.SampleRate,
				Channels:   c.Channels,
				Format:     c.Format,
			}
		}
		if c.SampleRate != out.SampleRate || c.Channels != out.Channels || c.Format != out.Format {
			return core.AudioChunk{}, fmt.Errorf(
				"concat: mismatched chunk parameters (%d Hz/%d ch vs %d Hz/%d ch)",
				c.SampleRate, c.Channels, out.SampleRate, out.Channels,
			)
		}
		out.Data = append(out.Data, c.Data...)
	}
	return out, nil
}

// writeSeekBuffer adapts an in-memory byte slice to io.WriteSeeker; the wav
// encoder seeks back to patch chunk sizes on Close.
type writeSeekBuffer struct {
	data []byte
	pos  int
}

func (b *writeSeekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = b.pos + int(offset)
	case io.SeekEnd:
		next = len(b.data) + int(offset)
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek: negative position")
	}
	b.pos = next
	return int64(next), nil
}

func (b *writeSeekBuffer) Bytes() []byte {
	return b.data
}
