package dataset

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/korean"

	"github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
)

const stopsCSV = "id,name,demand,lat\nD,창고,0,37.5\n1,강남,3,37.4\n2,서초,4.0,37.3\n"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadStopsEncodings(t *testing.T) {
	euckr, err := korean.EUCKR.NewEncoder().String(stopsCSV)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"plain", []byte(stopsCSV), "utf-8"},
		{"bom", append(append([]byte(nil), utf8BOM...), stopsCSV...), "utf-8-sig"},
		{"korean", []byte(euckr), "euc-kr"},
	}
	for _, c := range cases {
		stops, enc, err := LoadStops(writeFile(t, c.name+".csv", c.data))
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if enc != c.want {
			t.Fatalf("%s: encoding %s, want %s", c.name, enc, c.want)
		}
		if len(stops) != 3 || stops[0].Name != "창고" || stops[1].Demand != 3 || stops[2].Demand != 4 || stops[2].ID != "2" {
			t.Fatalf("%s: stops %+v", c.name, stops)
		}
	}
}

func TestParseStopsErrors(t *testing.T) {
	for _, in := range []string{
		"id,name\nD,Depot\n",
		"id,name,demand\n",
		"id,name,demand\nD,Depot,0\n1,A,2.5\n",
		"id,name,demand\nD,Depot,0\n1,A,lots\n",
	} {
		if _, err := ParseStops(strings.NewReader(in)); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestParseMatrix(t *testing.T) {
	m, labels, err := ParseMatrix(strings.NewReader(",Depot,A,B\nDepot,0,10,10\nA,10,0,5.5\nB,10,5,0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 3 || labels[1] != "A" {
		t.Fatalf("labels %v", labels)
	}
	if m[1][2] != 5.5 || m[2][0] != 10 {
		t.Fatalf("matrix %v", m)
	}

	for _, in := range []string{
		",A,B\nA,0,1\n",
		",A,B\nA,0,1\nB,1\n",
		",A,B\nA,0,x\nB,1,0\n",
	} {
		if _, _, err := ParseMatrix(strings.NewReader(in)); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestLoadMatrixWithBOM(t *testing.T) {
	data := append(append([]byte(nil), utf8BOM...), ",D,A\nD,0,7\nA,7,0\n"...)
	m, _, err := LoadMatrix(writeFile(t, "m.csv", data))
	if err != nil {
		t.Fatal(err)
	}
	if m[0][1] != 7 {
		t.Fatalf("matrix %v", m)
	}
}

func sampleResult() vrp.RunResult {
	return vrp.RunResult{
		Success:        true,
		ObjectiveValue: 25,
		VehicleCount:   2,
		TotalDistance:  25,
		TotalTime:      9.5,
		TotalLoad:      10,
		Routes: []vrp.Route{{
			VehicleID: 1,
			Load:      10,
			Waypoints: []vrp.Waypoint{
				{Role: vrp.RoleDepot, ID: "D", Name: "Depot"},
				{Role: vrp.RoleWaypoint, ID: "1", Name: "A", Load: 4, CumulativeDistance: 10, CumulativeTime: 3},
				{Role: vrp.RoleWaypoint, ID: "2", Name: "B", Load: 10, CumulativeDistance: 15, CumulativeTime: 5},
				{Role: vrp.RoleDepot, ID: "D", Name: "Depot", Load: 10, CumulativeDistance: 25, CumulativeTime: 9.5},
			},
		}},
	}
}

func TestWriteSummaryCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummaryCSV(&buf, sampleResult(), 10); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), utf8BOM) {
		t.Fatalf("missing BOM")
	}
	want := "Total_Distance_m,Total_Time_s,Total_Load,Objective_Value,Vehicle_Count,Vehicle_Capacity\n25,9.5,10,25,2,10\n"
	if got := string(buf.Bytes()[len(utf8BOM):]); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWriteRoutesCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRoutesCSV(&buf, sampleResult()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(buf.Bytes()[len(utf8BOM):])), "\n")
	if len(lines) != 5 {
		t.Fatalf("lines %q", lines)
	}
	if lines[2] != "2,10,3,10,2,A,waypoint,4,4" {
		t.Fatalf("row A = %q", lines[2])
	}
	if lines[3] != "2,15,5,10,3,B,waypoint,6,10" {
		t.Fatalf("row B = %q", lines[3])
	}
	if lines[4] != "2,25,9.5,10,4,Depot,depot,0,10" {
		t.Fatalf("depot row = %q", lines[4])
	}
}

// shortWriter accepts n bytes, then fails.
type shortWriter struct{ n int }

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.n {
		return 0, errShortWrite
	}
	w.n -= len(p)
	return len(p), nil
}

var errShortWrite = errors.New("disk full")

func TestWriteCSVReportsWriterErrors(t *testing.T) {
	big := sampleResult()
	for i := 0; i < 200; i++ {
		big.Routes = append(big.Routes, big.Routes[len(big.Routes)-1])
	}
	for name, write := range map[string]func(io.Writer) error{
		"summary":      func(w io.Writer) error { return WriteSummaryCSV(w, sampleResult(), 10) },
		"routes":       func(w io.Writer) error { return WriteRoutesCSV(w, sampleResult()) },
		"large routes": func(w io.Writer) error { return WriteRoutesCSV(w, big) },
	} {
		if err := write(&shortWriter{n: len(utf8BOM)}); !errors.Is(err, errShortWrite) {
			t.Fatalf("%s: err = %v", name, err)
		}
		if err := write(&shortWriter{}); !errors.Is(err, errShortWrite) {
			t.Fatalf("%s: BOM err = %v", name, err)
		}
	}
}
