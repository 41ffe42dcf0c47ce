package audio

import (
	"fmt"
	"time"
)

// Buffer holds decoded, interleaved PCM audio. It is not modified after
// decoding.
type Buffer struct {
	SampleRate  int    // Hz
	Channels    int    // interleaved channel count
	SampleWidth int    // bytes per sample
	Data        []byte // little-endian PCM
}

// FrameWidth is the byte size of one sample across all channels.
func (b Buffer) FrameWidth() int {
	return b.Channels * b.SampleWidth
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	return bytesToDuration(len(b.Data), b.SampleRate, b.FrameWidth())
}

// Chunk is a contiguous slice of a Buffer sent to the recognizer as one unit.
type Chunk struct {
	Index    int           // zero-based position
	Data     []byte        // shares memory with the source buffer
	Duration time.Duration // inferred from the byte length
}

// Chunker splits a Buffer into fixed-duration windows. Chunks are produced
// lazily and in order; once Next reports false the chunker is exhausted.
type Chunker struct {
	buf       Buffer
	chunkSize int
	offset    int
	index     int
}

// NewChunker returns a chunker yielding windows of chunkSeconds each. The last
// window holds whatever remains.
func NewChunker(buf Buffer, chunkSeconds int) (*Chunker, error) {
	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %d", chunkSeconds)
	}
	if buf.SampleRate <= 0 || buf.Channels <= 0 || buf.SampleWidth <= 0 {
		return nil, fmt.Errorf("invalid audio format: rate=%d channels=%d width=%d",
			buf.SampleRate, buf.Channels, buf.SampleWidth)
	}
	if len(buf.Data)%buf.FrameWidth() != 0 {
		return nil, fmt.Errorf("buffer length %d is not a multiple of frame width %d",
			len(buf.Data), buf.FrameWidth())
	}
	return &Chunker{
		buf:       buf,
		chunkSize: ChunkSize(chunkSeconds, buf.SampleRate, buf.Channels, buf.SampleWidth),
	}, nil
}

// ChunkSize is the byte length of a full window, e.g. 30 × 16000 × 1 × 2 = 960000.
func ChunkSize(chunkSeconds, sampleRate, channels, sampleWidth int) int {
	return chunkSeconds * sampleRate * channels * sampleWidth
}

// Len is the total number of chunks, ceil(len(data) / chunkSize).
func (c *Chunker) Len() int {
	return (len(c.buf.Data) + c.chunkSize - 1) / c.chunkSize
}

// ChunkSize returns the byte length of every chunk except possibly the last.
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Format returns the audio parameters shared by every chunk.
func (c *Chunker) Format() Buffer {
	return Buffer{
		SampleRate:  c.buf.SampleRate,
		Channels:    c.buf.Channels,
		SampleWidth: c.buf.SampleWidth,
	}
}

// Next returns the next chunk, or false when the buffer is exhausted.
func (c *Chunker) Next() (Chunk, bool) {
	if c.offset >= len(c.buf.Data) {
		return Chunk{}, false
	}
	end := c.offset + c.chunkSize
	if end > len(c.buf.Data) {
		end = len(c.buf.Data)
	}
	data := c.buf.Data[c.offset:end:end]
	chunk := Chunk{
		Index:    c.index,
		Data:     data,
		Duration: bytesToDuration(len(data), c.buf.SampleRate, c.buf.FrameWidth()),
	}
	c.offset = end
	c.index++
	return chunk, true
}

func bytesToDuration(n, sampleRate, frameWidth int) time.Duration {
	if sampleRate <= 0 || frameWidth <= 0 {
		return 0
	}
	frames := int64(n / frameWidth)
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
