package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const (
	flacBlockSize     = 4096
	flacBitsPerSample = 16
)

// FlacEncoder turns 16-bit little-endian PCM clips into FLAC files.
type FlacEncoder struct{}

func NewFlacEncoder() FlacEncoder {
	return FlacEncoder{}
}

func (FlacEncoder) Extension() string {
	return "flac"
}

func (FlacEncoder) Encode(w io.Writer, pcm []byte, sampleRate, channels int) error {
	var layout frame.Channels
	switch channels {
	case 1:
		layout = frame.ChannelsMono
	case 2:
		layout = frame.ChannelsLR
	default:
		return fmt.Errorf("flac: unsupported channel count %d", channels)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("flac: invalid sample rate %d", sampleRate)
	}

	frameBytes := 2 * channels
	totalFrames := len(pcm) / frameBytes

	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     uint8(channels),
		BitsPerSample: flacBitsPerSample,
		NSamples:      uint64(totalFrames),
	}
	enc, err := flac.NewEncoder(w, info)
	if err != nil {
		return fmt.Errorf("creating flac encoder: %w", err)
	}

	for start := 0; start < totalFrames; start += flacBlockSize {
		end := min(start+flacBlockSize, totalFrames)
		if err := enc.WriteFrame(pcmBlock(pcm, start, end, channels, layout, uint32(sampleRate))); err != nil {
			_ = enc.Close()
			return fmt.Errorf("writing flac frame: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing flac encoder: %w", err)
	}
	return nil
}

// pcmBlock de-interleaves frames [start, end) into one verbatim subframe per channel.
func pcmBlock(pcm []byte, start, end, channels int, layout frame.Channels, sampleRate uint32) *frame.Frame {
	n := end - start
	subframes := make([]*frame.Subframe, channels)
	for ch := range subframes {
		samples := make([]int32, n)
		for i := 0; i < n; i++ {
			offset := ((start+i)*channels + ch) * 2
			samples[i] = int32(int16(binary.LittleEndian.Uint16(pcm[offset:])))
		}
		subframes[ch] = &frame.Subframe{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  n,
		}
	}
	return &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(n),
			SampleRate:    sampleRate,
			Channels:      layout,
			BitsPerSample: flacBitsPerSample,
		},
		Subframes: subframes,
	}
}
