package compress

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectAlgorithm(t *testing.T) {
	tests := []struct {
		filename string
		expected Algorithm
		wantErr  bool
	}{
		{"crm_2024-05-01_12-00-00.tar.gz", Gzip, false},
		{"crm.tgz", Gzip, false},
		{"crm_2024-05-01_12-00-00.tar.lz4", Lz4, false},
		{"crm_2024-05-01_12-00-00.tar.zst", Zstd, false},
		{"crm_2024-05-01_12-00-00.tar", None, false},
		{"raw.sql", "", true},
		{"no_extension", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			algo, err := DetectAlgorithm(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, algo)
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"gzip", Gzip, false},
		{"LZ4", Lz4, false},
		{"zstd", Zstd, false},
		{"", Zstd, false}, // default
		{"none", None, false},
		{"brotli", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	payload := strings.Repeat("INSERT INTO res_partner VALUES (42, 'test');\n", 200)

	for _, algo := range []Algorithm{Gzip, Lz4, Zstd, None} {
		t.Run(string(algo), func(t *testing.T) {
			var buf bytes.Buffer

			w, err := NewWriter(&buf, algo)
			require.NoError(t, err)
			_, err = io.WriteString(w, payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			if algo != None {
				// Repetitive SQL must actually shrink.
				assert.Less(t, buf.Len(), len(payload))
			}

			r, err := NewReader(bytes.NewReader(buf.Bytes()), algo)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())

			assert.Equal(t, payload, string(got))
		})
	}
}

func TestRoundTrip_TruncatedStreamFails(t *testing.T) {
	for _, algo := range []Algorithm{Gzip, Zstd} {
		t.Run(string(algo), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, algo)
			require.NoError(t, err)
			_, err = io.WriteString(w, strings.Repeat("data", 4096))
			require.NoError(t, err)
			require.NoError(t, w.Close())

			cut := buf.Bytes()[:buf.Len()/2]
			r, err := NewReader(bytes.NewReader(cut), algo)
			if err != nil {
				return // header alone may already be invalid
			}
			_, err = io.ReadAll(r)
			assert.Error(t, err)
		})
	}
}

func TestExt(t *testing.T) {
	assert.Equal(t, ".gz", Ext(Gzip))
	assert.Equal(t, ".lz4", Ext(Lz4))
	assert.Equal(t, ".zst", Ext(Zstd))
	assert.Equal(t, "", Ext(None))
}
