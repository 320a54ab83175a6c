// Package barcode loads the sample and counted barcode dictionaries that
// the matcher corrects read segments against. It implements §4.2 of the
// design.
package barcode

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/barcodecount/bcerrors"
)

// SampleDict maps a sample barcode's DNA string to its sample name. All
// keys are the same length.
type SampleDict struct {
	ByBarcode map[string]string
	Len       int
}

// LoadSampleDict parses a headerless-or-headered CSV of "barcode,sample_id"
// rows. A header row, if present, is detected and skipped (per §9's
// "permits and ignores" rule): only row 0 can be a header, and it is
// recognized by its barcode field failing the barcode-alphabet check. The
// second field is not examined.
func LoadSampleDict(r io.Reader, wantLen int) (*SampleDict, error) {
	rows, err := readCSVRows(r, 2)
	if err != nil {
		return nil, err
	}
	d := &SampleDict{ByBarcode: map[string]string{}, Len: wantLen}
	names := map[string]string{}
	for i, row := range rows {
		barcode, name := strings.ToUpper(strings.TrimSpace(row[0])), strings.TrimSpace(row[1])
		if i == 0 && looksLikeHeader(barcode) {
			continue
		}
		if err := validateBases(barcode); err != nil {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile, err)
		}
		if wantLen > 0 && len(barcode) != wantLen {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile,
				fmt.Sprintf("sample barcode %s has length %d, want %d", barcode, len(barcode), wantLen))
		}
		if d.Len == 0 {
			d.Len = len(barcode)
		}
		if other, dup := d.ByBarcode[barcode]; dup {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile,
				fmt.Sprintf("duplicate sample barcode %s (names %s and %s)", barcode, other, name))
		}
		if otherBarcode, dup := names[name]; dup {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile,
				fmt.Sprintf("duplicate sample name %s (barcodes %s and %s)", name, otherBarcode, barcode))
		}
		d.ByBarcode[barcode] = name
		names[name] = barcode
	}
	return d, nil
}

// CountedDict maps, for each 1-based slot index, a DNA string to its
// barcode name. The same DNA string may appear in more than one slot, but
// within a slot it (and its name) must be unique.
type CountedDict struct {
	// BySlot[i] is the barcode->name map for slot i (1-based).
	BySlot map[int]map[string]string
	// LenBySlot[i] is the shared key length for slot i.
	LenBySlot map[int]int
}

// NumSlots returns K, the highest slot index observed.
func (d *CountedDict) NumSlots() int {
	max := 0
	for i := range d.BySlot {
		if i > max {
			max = i
		}
	}
	return max
}

// LoadCountedDict parses rows of "barcode,barcode_id,slot_number" and
// groups them by slot. slotLens, keyed by 1-based slot index, gives the
// scheme's expected length for each slot; every barcode in that slot must
// match it exactly.
func LoadCountedDict(r io.Reader, slotLens map[int]int) (*CountedDict, error) {
	rows, err := readCSVRows(r, 3)
	if err != nil {
		return nil, err
	}
	d := &CountedDict{BySlot: map[int]map[string]string{}, LenBySlot: map[int]int{}}
	names := map[int]map[string]string{}
	for i, row := range rows {
		barcode := strings.ToUpper(strings.TrimSpace(row[0]))
		name := strings.TrimSpace(row[1])
		slotField := strings.TrimSpace(row[2])
		if i == 0 && looksLikeHeader(barcode) {
			continue
		}
		slot, err := strconv.Atoi(slotField)
		if err != nil || slot <= 0 {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile,
				fmt.Sprintf("invalid slot number %q for barcode %s", slotField, barcode))
		}
		if err := validateBases(barcode); err != nil {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile, err)
		}
		if want, ok := slotLens[slot]; ok && len(barcode) != want {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile,
				fmt.Sprintf("counted barcode %s in slot %d has length %d, want %d", barcode, slot, len(barcode), want))
		}
		if existing, ok := d.LenBySlot[slot]; ok && existing != len(barcode) {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile,
				fmt.Sprintf("slot %d has barcodes of inconsistent length %d and %d", slot, existing, len(barcode)))
		}
		d.LenBySlot[slot] = len(barcode)

		if d.BySlot[slot] == nil {
			d.BySlot[slot] = map[string]string{}
			names[slot] = map[string]string{}
		}
		if other, dup := d.BySlot[slot][barcode]; dup {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile,
				fmt.Sprintf("duplicate barcode %s in slot %d (names %s and %s)", barcode, slot, other, name))
		}
		if otherBarcode, dup := names[slot][name]; dup {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile,
				fmt.Sprintf("duplicate name %s in slot %d (barcodes %s and %s)", name, slot, otherBarcode, barcode))
		}
		d.BySlot[slot][barcode] = name
		names[slot][name] = barcode
	}

	for slot := 1; slot <= d.NumSlots(); slot++ {
		if len(d.BySlot[slot]) == 0 {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile, fmt.Sprintf("slot %d has no entries", slot))
		}
	}
	return d, nil
}

// readCSVRows reads r as comma-separated rows, rejecting whitespace-only rows
// and any row whose field count doesn't match wantFields. Fully blank lines
// are skipped by encoding/csv itself and are not rejected. encoding/csv's own quoted
// field handling is used so a comma embedded in a quoted field is accepted;
// an unquoted embedded comma instead changes the field count and is
// rejected, matching §4.2's "reject rows ... that contain commas inside
// fields" for the common unquoted case.
func readCSVRows(r io.Reader, wantFields int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var rows [][]string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile, err)
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile, "empty row")
		}
		if len(row) != wantFields {
			return nil, bcerrors.E(bcerrors.InvalidBarcodeFile,
				fmt.Sprintf("row %v has %d fields, want %d", row, len(row), wantFields))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func looksLikeHeader(barcode string) bool {
	return validateBases(barcode) != nil
}

func validateBases(s string) error {
	if s == "" {
		return fmt.Errorf("empty barcode")
	}
	for _, c := range s {
		switch c {
		case 'A', 'C', 'G', 'T':
		default:
			return fmt.Errorf("barcode %q contains non-ACGT base %q", s, c)
		}
	}
	return nil
}
