package fastqio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanTwoRecords(t *testing.T) {
	data := "@r1\nACGT\n+\nIIII\n@r2\nTTTT\n+\nIIII\n"
	s := NewScanner(strings.NewReader(data))
	var rec Record

	require.True(t, s.Scan(&rec))
	assert.Equal(t, "@r1", rec.ID)
	assert.Equal(t, "ACGT", rec.Seq)
	assert.Equal(t, "IIII", rec.Qual)

	require.True(t, s.Scan(&rec))
	assert.Equal(t, "@r2", rec.ID)
	assert.Equal(t, "TTTT", rec.Seq)

	require.False(t, s.Scan(&rec))
	require.NoError(t, s.Err())
}

func TestScanRejectsMissingAtMarker(t *testing.T) {
	s := NewScanner(strings.NewReader("r1\nACGT\n+\nIIII\n"))
	var rec Record
	require.False(t, s.Scan(&rec))
	require.Error(t, s.Err())
}

func TestScanRejectsTruncatedRecord(t *testing.T) {
	s := NewScanner(strings.NewReader("@r1\nACGT\n+\n"))
	var rec Record
	require.False(t, s.Scan(&rec))
	require.Error(t, s.Err())
}

func TestScanRejectsLengthMismatch(t *testing.T) {
	s := NewScanner(strings.NewReader("@r1\nACGT\n+\nII\n"))
	var rec Record
	require.False(t, s.Scan(&rec))
	require.Error(t, s.Err())
}
