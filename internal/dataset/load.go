// Package dataset reads stop lists and cost matrices from CSV files and
// writes solve results back out in the spreadsheet layouts operators use.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"

	"github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrEncoding is returned when no supported encoding decodes a file cleanly.
var ErrEncoding = errors.New("dataset: unsupported text encoding")

type candidate struct {
	name string
	enc  encoding.Encoding // nil means UTF-8
}

// Stop files come from spreadsheets saved on Korean Windows installs as often
// as from UTF-8 tools. The x/text EUC-KR decoder follows the WHATWG table,
// which already covers the CP949 extensions.
var candidates = []candidate{
	{name: "utf-8"},
	{name: "utf-8-sig"},
	{name: "euc-kr", enc: korean.EUCKR},
}

// Decode returns raw as UTF-8 text and the name of the encoding it was in.
func Decode(raw []byte) ([]byte, string, error) {
	for _, c := range candidates {
		switch {
		case c.name == "utf-8":
			if !bytes.HasPrefix(raw, utf8BOM) && utf8.Valid(raw) {
				return raw, c.name, nil
			}
		case c.name == "utf-8-sig":
			if bytes.HasPrefix(raw, utf8BOM) && utf8.Valid(raw[len(utf8BOM):]) {
				return raw[len(utf8BOM):], c.name, nil
			}
		default:
			out, err := c.enc.NewDecoder().Bytes(raw)
			if err == nil && !bytes.ContainsRune(out, utf8.RuneError) {
				return out, c.name, nil
			}
		}
	}
	return nil, "", ErrEncoding
}

// LoadStops reads an id,name,demand CSV whose first row is the depot.
func LoadStops(path string) ([]vrp.Stop, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read stops: %w", err)
	}
	text, enc, err := Decode(raw)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	stops, err := ParseStops(bytes.NewReader(text))
	if err != nil {
		return nil, enc, fmt.Errorf("parse %s: %w", path, err)
	}
	return stops, enc, nil
}

// ParseStops reads UTF-8 stop rows. Extra columns are ignored.
func ParseStops(r io.Reader) ([]vrp.Stop, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read stops header: %w", err)
	}
	h := headerIndex(header)
	for _, col := range []string{"id", "name", "demand"} {
		if _, ok := h[col]; !ok {
			return nil, fmt.Errorf("stops header lacks %q column", col)
		}
	}

	var stops []vrp.Stop
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stops row: %w", err)
		}
		get := func(k string) string {
			i := h[k]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		demand, err := parseDemand(get("demand"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		stops = append(stops, vrp.Stop{ID: get("id"), Name: get("name"), Demand: demand})
	}
	if len(stops) == 0 {
		return nil, errors.New("no stop rows")
	}
	return stops, nil
}

// parseDemand accepts integral floats such as "5.0" written by spreadsheets.
func parseDemand(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("demand %q is not an integer", s)
	}
	return int(f), nil
}

// LoadMatrix reads a labelled N×N matrix: the header row and the first
// column carry location names.
func LoadMatrix(path string) (vrp.Matrix, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read matrix: %w", err)
	}
	text, _, err := Decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	m, labels, err := ParseMatrix(bytes.NewReader(text))
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, labels, nil
}

func ParseMatrix(r io.Reader) (vrp.Matrix, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read matrix header: %w", err)
	}
	if len(header) < 2 {
		return nil, nil, errors.New("matrix header has no columns")
	}
	labels := make([]string, 0, len(header)-1)
	for _, l := range header[1:] {
		labels = append(labels, strings.TrimSpace(l))
	}
	n := len(labels)

	var m vrp.Matrix
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read matrix row: %w", err)
		}
		if len(row)-1 != n {
			return nil, nil, fmt.Errorf("matrix row %q has %d values, want %d", row[0], len(row)-1, n)
		}
		vals := make([]float64, n)
		for j, cell := range row[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("matrix row %q column %d: %w", row[0], j+1, err)
			}
			vals[j] = v
		}
		m = append(m, vals)
	}
	if len(m) != n {
		return nil, nil, fmt.Errorf("matrix has %d rows for %d columns", len(m), n)
	}
	return m, labels, nil
}

func headerIndex(hdr []string) map[string]int {
	m := make(map[string]int, len(hdr))
	for i, k := range hdr {
		m[strings.ToLower(strings.TrimSpace(k))] = i
	}
	return m
}
