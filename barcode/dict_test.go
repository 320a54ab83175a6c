package barcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSampleDict(t *testing.T) {
	d, err := LoadSampleDict(strings.NewReader("AAAA,S1\nCCCC,S2\n"), 4)
	require.NoError(t, err)
	assert.Equal(t, "S1", d.ByBarcode["AAAA"])
	assert.Equal(t, "S2", d.ByBarcode["CCCC"])
	assert.Equal(t, 4, d.Len)
}

func TestLoadSampleDictSkipsHeader(t *testing.T) {
	d, err := LoadSampleDict(strings.NewReader("barcode,sample_id\nAAAA,S1\n"), 4)
	require.NoError(t, err)
	assert.Len(t, d.ByBarcode, 1)
}

func TestLoadSampleDictRejectsDuplicateBarcode(t *testing.T) {
	_, err := LoadSampleDict(strings.NewReader("AAAA,S1\nAAAA,S2\n"), 4)
	require.Error(t, err)
}

func TestLoadSampleDictRejectsDuplicateName(t *testing.T) {
	_, err := LoadSampleDict(strings.NewReader("AAAA,S1\nCCCC,S1\n"), 4)
	require.Error(t, err)
}

func TestLoadSampleDictRejectsWrongLength(t *testing.T) {
	_, err := LoadSampleDict(strings.NewReader("AAA,S1\n"), 4)
	require.Error(t, err)
}

func TestLoadSampleDictRejectsWrongColumnCount(t *testing.T) {
	_, err := LoadSampleDict(strings.NewReader("AAAA,S1,extra\n"), 4)
	require.Error(t, err)
}

func TestLoadCountedDict(t *testing.T) {
	d, err := LoadCountedDict(strings.NewReader("GGG,B1,1\nAAA,B2,1\n"), map[int]int{1: 3})
	require.NoError(t, err)
	assert.Equal(t, "B1", d.BySlot[1]["GGG"])
	assert.Equal(t, "B2", d.BySlot[1]["AAA"])
	assert.Equal(t, 1, d.NumSlots())
}

func TestLoadCountedDictAllowsRepeatAcrossSlots(t *testing.T) {
	d, err := LoadCountedDict(strings.NewReader("AAA,B1,1\nAAA,B1,2\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "B1", d.BySlot[1]["AAA"])
	assert.Equal(t, "B1", d.BySlot[2]["AAA"])
}

func TestLoadCountedDictRejectsDuplicateWithinSlot(t *testing.T) {
	_, err := LoadCountedDict(strings.NewReader("AAA,B1,1\nAAA,B2,1\n"), nil)
	require.Error(t, err)
}

func TestLoadCountedDictRejectsDuplicateNameWithinSlot(t *testing.T) {
	_, err := LoadCountedDict(strings.NewReader("AAA,B1,1\nCCC,B1,1\n"), nil)
	require.Error(t, err)
}

func TestLoadCountedDictRejectsMissingSlot(t *testing.T) {
	_, err := LoadCountedDict(strings.NewReader("AAA,B1,1\nCCC,B2,3\n"), nil)
	require.Error(t, err)
}

func TestLoadCountedDictRejectsSchemeLengthMismatch(t *testing.T) {
	_, err := LoadCountedDict(strings.NewReader("AAAA,B1,1\n"), map[int]int{1: 3})
	require.Error(t, err)
}
