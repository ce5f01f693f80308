package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/yumyai/ecophylo/pkg/fault"
)

// Assembly is one genome or metagenome contig set named by the input
// lists. External tells genomes from metagenomes apart in reports.
type Assembly struct {
	Name     string
	Path     string
	External bool
}

// GeneModel names one target HMM to extract.
type GeneModel struct {
	Name   string
	Source string
	Path   string
}

// Sample is one metagenomic read set, profile mode only.
type Sample struct {
	Name  string
	Reads []string
}

// readTabular yields the non-empty, non-comment rows of a tab-separated
// list file. A header row naming the first column is skipped.
func readTabular(path string, headerFirstCol string, minCols int) ([][]string, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list: %w", err)
	}
	defer f.Close()

	var rows [][]string

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cols := strings.Split(line, "\t")
		if lineno == 1 && strings.EqualFold(strings.TrimSpace(cols[0]), headerFirstCol) {
			continue
		}
		if len(cols) < minCols {
			return nil, fault.Configf("%s line %d: expected at least %d tab-separated columns",
				path, lineno, minCols)
		}

		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		rows = append(rows, cols)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadAssemblyList parses a `name<TAB>path` list. Both the genome and the
// metagenome lists use this layout.
func ReadAssemblyList(path string, external bool) ([]Assembly, error) {

	rows, err := readTabular(path, "name", 2)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	assemblies := make([]Assembly, 0, len(rows))
	for _, cols := range rows {
		if seen[cols[0]] {
			return nil, fault.Configf("duplicate assembly name %q in %s", cols[0], path)
		}
		seen[cols[0]] = true
		assemblies = append(assemblies, Assembly{Name: cols[0], Path: cols[1], External: external})
	}

	return assemblies, nil
}

// ReadGeneModelList parses a `name<TAB>source<TAB>path` HMM list.
func ReadGeneModelList(path string) ([]GeneModel, error) {

	rows, err := readTabular(path, "name", 3)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	models := make([]GeneModel, 0, len(rows))
	for _, cols := range rows {
		if seen[cols[0]] {
			return nil, fault.Configf("duplicate gene model %q in %s", cols[0], path)
		}
		seen[cols[0]] = true
		models = append(models, GeneModel{Name: cols[0], Source: cols[1], Path: cols[2]})
	}

	return models, nil
}

// ReadSampleList parses a `sample<TAB>r1[<TAB>r2]` list of read files.
func ReadSampleList(path string) ([]Sample, error) {

	rows, err := readTabular(path, "sample", 2)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	samples := make([]Sample, 0, len(rows))
	for _, cols := range rows {
		if seen[cols[0]] {
			return nil, fault.Configf("duplicate sample name %q in %s", cols[0], path)
		}
		seen[cols[0]] = true

		var reads []string
		for _, c := range cols[1:] {
			if c != "" {
				reads = append(reads, c)
			}
		}
		samples = append(samples, Sample{Name: cols[0], Reads: reads})
	}

	return samples, nil
}
