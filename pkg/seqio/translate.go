package seqio

import "strings"

// Standard genetic code. Ambiguous or incomplete codons translate to X.
var codonTable = map[string]byte{
	"TTT": 'F', "TTC": 'F', "TTA": 'L', "TTG": 'L',
	"CTT": 'L', "CTC": 'L', "CTA": 'L', "CTG": 'L',
	"ATT": 'I', "ATC": 'I', "ATA": 'I', "ATG": 'M',
	"GTT": 'V', "GTC": 'V', "GTA": 'V', "GTG": 'V',
	"TCT": 'S', "TCC": 'S', "TCA": 'S', "TCG": 'S',
	"CCT": 'P', "CCC": 'P', "CCA": 'P', "CCG": 'P',
	"ACT": 'T', "ACC": 'T', "ACA": 'T', "ACG": 'T',
	"GCT": 'A', "GCC": 'A', "GCA": 'A', "GCG": 'A',
	"TAT": 'Y', "TAC": 'Y', "TAA": '*', "TAG": '*',
	"CAT": 'H', "CAC": 'H', "CAA": 'Q', "CAG": 'Q',
	"AAT": 'N', "AAC": 'N', "AAA": 'K', "AAG": 'K',
	"GAT": 'D', "GAC": 'D', "GAA": 'E', "GAG": 'E',
	"TGT": 'C', "TGC": 'C', "TGA": '*', "TGG": 'W',
	"CGT": 'R', "CGC": 'R', "CGA": 'R', "CGG": 'R',
	"AGT": 'S', "AGC": 'S', "AGA": 'R', "AGG": 'R',
	"GGT": 'G', "GGC": 'G', "GGA": 'G', "GGG": 'G',
}

// Translate converts a nucleotide sequence to amino acids using the
// standard code. A trailing stop is trimmed; internal stops are kept so a
// bad frame stays visible in the alignment.
func Translate(nt string) string {

	nt = strings.ToUpper(strings.ReplaceAll(nt, "U", "T"))

	var aa strings.Builder
	aa.Grow(len(nt) / 3)

	for i := 0; i+3 <= len(nt); i += 3 {
		residue, ok := codonTable[nt[i:i+3]]
		if !ok {
			residue = 'X'
		}
		aa.WriteByte(residue)
	}

	out := aa.String()
	if strings.HasSuffix(out, "*") {
		out = out[:len(out)-1]
	}
	return out
}
