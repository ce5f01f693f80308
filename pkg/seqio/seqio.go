// Package seqio holds the sequence records and FASTA plumbing shared by
// the filtering, clustering and profiling packages.
package seqio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Kind selects which sequence view of a hit is used downstream. It is the
// single switch between nucleotide and amino-acid clustering.
type Kind string

const (
	NT Kind = "NT"
	AA Kind = "AA"
)

// Record is one FASTA entry.
type Record struct {
	ID  string
	Seq string
}

// ReadFasta parses all records from r. Header description after the first
// whitespace is dropped; only the identifier is kept.
func ReadFasta(r io.Reader) ([]Record, error) {

	var records []Record
	var current *Record
	var seq strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	flush := func() {
		if current != nil {
			current.Seq = seq.String()
			records = append(records, *current)
			seq.Reset()
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ">") {
			flush()
			id := strings.Fields(line[1:])
			if len(id) == 0 {
				return nil, fmt.Errorf("fasta: header with empty identifier")
			}
			current = &Record{ID: id[0]}
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("fasta: sequence data before first header")
		}
		seq.WriteString(line)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	flush()
	return records, nil
}

// ReadFastaFile is the path-based wrapper around ReadFasta.
func ReadFastaFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ReadFasta(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// WriteFasta writes records wrapped at 80 columns.
func WriteFasta(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := fmt.Fprintf(bw, ">%s\n", rec.ID); err != nil {
			return err
		}
		for start := 0; start < len(rec.Seq); start += 80 {
			end := start + 80
			if end > len(rec.Seq) {
				end = len(rec.Seq)
			}
			if _, err := fmt.Fprintln(bw, rec.Seq[start:end]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteFastaFile writes records to path, creating or truncating it.
func WriteFastaFile(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := WriteFasta(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
