//go:build bench
// +build bench

package codec

import (
	"bytes"
	"testing"
)

var benchmarks = []struct {
	name  string
	key   []byte
	value []byte
}{
	{name: "small", key: []byte("user:123"), value: []byte("john@example.com")},
	{name: "medium", key: bytes.Repeat([]byte("k"), 100), value: bytes.Repeat([]byte("v"), 1000)},
	{name: "large", key: bytes.Repeat([]byte("k"), 1000), value: bytes.Repeat([]byte("v"), 10000)},
}

func BenchmarkRecordCodec_Encode(b *testing.B) {
	codec := NewRecordCodec()

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := codec.Encode(bm.key, bm.value); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRecordCodec_Decode(b *testing.B) {
	codec := NewRecordCodec()

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			encoded, err := codec.Encode(bm.key, bm.value)
			if err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := codec.Decode(encoded); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRecordCodec_DecodeFrom(b *testing.B) {
	codec := NewRecordCodec()

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			encoded, err := codec.Encode(bm.key, bm.value)
			if err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := codec.DecodeFrom(bytes.NewReader(encoded)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkChecksum(b *testing.B) {
	key := []byte("benchmark key")
	value := bytes.Repeat([]byte("v"), 1000)

	for i := 0; i < b.N; i++ {
		_ = Checksum(key, value)
	}
}
