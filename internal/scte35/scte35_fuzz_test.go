package scte35

import (
	"encoding/hex"
	"testing"
)

func FuzzDecodeBytes(f *testing.F) {
	for _, s := range goldenVectors {
		data, _ := hex.DecodeString(s)
		f.Add(data)
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		sis, err := DecodeBytes(data)
		if err == nil {
			sis.SplicePoints()
		}
	})
}
