package audio

import (
	"bytes"
	"testing"
	"time"
)

func pcmBuffer(n int) Buffer {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return Buffer{SampleRate: 16000, Channels: 1, SampleWidth: 2, Data: data}
}

func collect(t *testing.T, c *Chunker) []Chunk {
	t.Helper()
	var chunks []Chunk
	for {
		chunk, ok := c.Next()
		if !ok {
			return chunks
		}
		chunks = append(chunks, chunk)
	}
}

func TestChunkSizeDefaults(t *testing.T) {
	if got := ChunkSize(30, 16000, 1, 2); got != 960000 {
		t.Fatalf("expected 960000 bytes per chunk, got %d", got)
	}
}

func TestChunkerCoversBuffer(t *testing.T) {
	tests := []struct {
		name      string
		length    int
		wantCount int
		wantLast  int
	}{
		{"empty", 0, 0, 0},
		{"single partial", 1000, 1, 1000},
		{"exact multiple", 2 * 960000, 2, 960000},
		{"remainder", 960000 + 32000, 2, 32000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := pcmBuffer(tt.length)
			c, err := NewChunker(buf, 30)
			if err != nil {
				t.Fatalf("NewChunker failed: %v", err)
			}
			if c.Len() != tt.wantCount {
				t.Errorf("Len() = %d, want %d", c.Len(), tt.wantCount)
			}

			chunks := collect(t, c)
			if len(chunks) != tt.wantCount {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.wantCount)
			}

			var joined []byte
			for i, chunk := range chunks {
				if chunk.Index != i {
					t.Errorf("chunk %d has index %d", i, chunk.Index)
				}
				if i < len(chunks)-1 && len(chunk.Data) != 960000 {
					t.Errorf("chunk %d has %d bytes, want 960000", i, len(chunk.Data))
				}
				if len(chunk.Data)%2 != 0 {
					t.Errorf("chunk %d is not sample aligned", i)
				}
				joined = append(joined, chunk.Data...)
			}
			if len(chunks) > 0 && len(chunks[len(chunks)-1].Data) != tt.wantLast {
				t.Errorf("last chunk has %d bytes, want %d", len(chunks[len(chunks)-1].Data), tt.wantLast)
			}
			if !bytes.Equal(joined, buf.Data) {
				t.Error("chunks do not reconstruct the buffer")
			}
		})
	}
}

func TestChunkerLargeInputCount(t *testing.T) {
	// 65,000,000 bytes -> 67 full chunks plus a 680,000 byte remainder.
	c, err := NewChunker(Buffer{SampleRate: 16000, Channels: 1, SampleWidth: 2, Data: make([]byte, 65000000)}, 30)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}
	if c.Len() != 68 {
		t.Fatalf("expected 68 chunks, got %d", c.Len())
	}
	var last Chunk
	n := 0
	for {
		chunk, ok := c.Next()
		if !ok {
			break
		}
		last = chunk
		n++
	}
	if n != 68 {
		t.Errorf("iterated %d chunks, want 68", n)
	}
	if len(last.Data) != 680000 {
		t.Errorf("last chunk has %d bytes, want 680000", len(last.Data))
	}
	if last.Duration != 21250*time.Millisecond {
		t.Errorf("last chunk duration = %v, want 21.25s", last.Duration)
	}
}

func TestChunkerIsNotRestartable(t *testing.T) {
	c, _ := NewChunker(pcmBuffer(64000), 1)
	collect(t, c)
	if _, ok := c.Next(); ok {
		t.Error("exhausted chunker returned another chunk")
	}
}

func TestChunkerDurations(t *testing.T) {
	c, _ := NewChunker(pcmBuffer(ChunkSize(30, 16000, 1, 2)+16000), 30)
	chunks := collect(t, c)
	if chunks[0].Duration != 30*time.Second {
		t.Errorf("full chunk duration = %v, want 30s", chunks[0].Duration)
	}
	if chunks[1].Duration != 500*time.Millisecond {
		t.Errorf("tail chunk duration = %v, want 500ms", chunks[1].Duration)
	}
}

func TestNewChunkerRejectsInvalidInput(t *testing.T) {
	if _, err := NewChunker(pcmBuffer(10), 0); err == nil {
		t.Error("expected error for zero chunk duration")
	}
	if _, err := NewChunker(Buffer{SampleRate: 0, Channels: 1, SampleWidth: 2}, 30); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := NewChunker(pcmBuffer(11), 30); err == nil {
		t.Error("expected error for a partial trailing sample")
	}
}

func TestBufferDuration(t *testing.T) {
	buf := pcmBuffer(64000)
	if buf.Duration() != 2*time.Second {
		t.Errorf("expected 2s, got %v", buf.Duration())
	}
}
