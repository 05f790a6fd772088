package compression

import (
	"bytes"
	"testing"
)

func TestCompressors(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"hero":{"title":"Exhibition stands"}}`), 50)

	compressors := map[string]Compressor{
		"gzip": GzipCompressor{},
		"zstd": ZstdCompressor{},
	}

	for name, c := range compressors {
		t.Run(name, func(t *testing.T) {
			compressed, err := c.Compress(payload)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			if len(compressed) >= len(payload) {
				t.Errorf("Expected repetitive payload to shrink, %d >= %d", len(compressed), len(payload))
			}

			out, err := c.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}
			if !bytes.Equal(out, payload) {
				t.Error("Decompressed payload differs from the input")
			}
		})
	}

	t.Run("garbage input", func(t *testing.T) {
		if _, err := (ZstdCompressor{}).Decompress([]byte("not zstd")); err == nil {
			t.Error("Expected zstd error for garbage input")
		}
		if _, err := (GzipCompressor{}).Decompress([]byte("not gzip")); err == nil {
			t.Error("Expected gzip error for garbage input")
		}
	})
}

func TestByName(t *testing.T) {
	if c, err := ByName("gzip"); err != nil || c != (GzipCompressor{}) {
		t.Errorf("Expected gzip compressor, got %v (%v)", c, err)
	}
	if c, err := ByName(""); err != nil || c != (ZstdCompressor{}) {
		t.Errorf("Expected zstd as the default, got %v (%v)", c, err)
	}
	if _, err := ByName("lz4"); err == nil {
		t.Error("Expected error for unknown compression")
	}
}
