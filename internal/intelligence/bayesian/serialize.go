package bayesian

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/turtacn/molbayes/internal/domain/molecule"
	"github.com/turtacn/molbayes/pkg/errors"
)

// File conventions for serialized models.
const (
	FileExtension = ".bayesian"
	ContentType   = "chemistry/x-bayesian"
)

const (
	headerPrefix = "Bayesian!("
	headerSuffix = ")"
	endMarker    = "!End"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ",")
}

func escapeNote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func unescapeNote(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			if s[i] == 'n' {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(s[i])
			}
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// Serialise renders the model in its line-oriented text form.  Hashes are
// written in ascending order so equal models produce identical text.
func (m *Model) Serialise() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%s,%d,%s,%s%s\n", headerPrefix, m.kind, m.folding,
		formatFloat(m.lowThresh), formatFloat(m.highThresh), headerSuffix)

	hashes := make([]uint32, 0, len(m.contribs))
	for h := range m.contribs {
		hashes = append(hashes, h)
	}
	slices.Sort(hashes)
	for _, h := range hashes {
		fmt.Fprintf(&sb, "%d=%s\n", h, formatFloat(m.contribs[h]))
	}

	fmt.Fprintf(&sb, "training:size=%d\n", m.trainingSize)
	fmt.Fprintf(&sb, "training:actives=%d\n", m.trainingActives)

	// parsed models may carry only some roc: and truth: lines; write back
	// exactly those
	if r := m.roc; r != nil {
		if !r.aucMissing {
			fmt.Fprintf(&sb, "roc:auc=%s\n", formatFloat(r.AUC))
		}
		if r.Type.IsValid() {
			fmt.Fprintf(&sb, "roc:type=%s\n", r.Type)
		}
		if r.X != nil && r.Y != nil {
			fmt.Fprintf(&sb, "roc:x=%s\n", formatFloats(r.X))
			fmt.Fprintf(&sb, "roc:y=%s\n", formatFloats(r.Y))
		}
	}
	if t := m.truth; t != nil {
		for _, f := range truthFields {
			if t.missing&f.flag == 0 {
				fmt.Fprintf(&sb, "truth:%s=%s\n", f.key, f.format(t))
			}
		}
	}

	if m.Notes.Title != "" {
		fmt.Fprintf(&sb, "note:title=%s\n", escapeNote(m.Notes.Title))
	}
	if m.Notes.Origin != "" {
		fmt.Fprintf(&sb, "note:origin=%s\n", escapeNote(m.Notes.Origin))
	}
	if m.Notes.Field != "" {
		fmt.Fprintf(&sb, "note:field=%s\n", escapeNote(m.Notes.Field))
	}
	for _, c := range m.Notes.Comments {
		fmt.Fprintf(&sb, "note:comment=%s\n", escapeNote(c))
	}
	sb.WriteString(endMarker + "\n")
	return sb.String()
}

// Deserialise parses text produced by Serialise.  The result can predict
// and be re-serialised but carries no training examples.  Unknown keys are
// ignored.
func Deserialise(text string, opts ...Option) (*Model, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return nil, errors.FormatError("empty model text")
	}
	kind, folding, low, high, err := parseHeader(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, err
	}
	m, err := NewModel(kind, folding, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelFormat, "invalid model header").WithDetail(lines[0])
	}
	m.contribs = make(map[uint32]float64)
	m.setThresholds(low, high)

	p := &modelParser{m: m}
	for n, line := range lines[1:] {
		switch strings.TrimSpace(line) {
		case endMarker:
			p.finish()
			return m, nil
		case "":
			continue
		}
		if err := p.parseLine(line); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeModelFormat, "invalid model line").
				WithDetail(fmt.Sprintf("line %d: %s", n+2, line))
		}
	}
	return nil, errors.FormatError("missing " + endMarker + " terminator")
}

func parseHeader(line string) (kind molecule.Kind, folding int, low, high float64, err error) {
	if !strings.HasPrefix(line, headerPrefix) || !strings.HasSuffix(line, headerSuffix) {
		return 0, 0, 0, 0, errors.FormatError("malformed header").WithDetail(line)
	}
	fields := strings.Split(line[len(headerPrefix):len(line)-len(headerSuffix)], ",")
	if len(fields) != 4 {
		return 0, 0, 0, 0, errors.FormatError("header needs four fields").WithDetail(line)
	}
	if kind, err = molecule.ParseKind(fields[0]); err != nil {
		return 0, 0, 0, 0, errors.FormatError("unknown fingerprint type").WithDetail(fields[0])
	}
	if folding, err = strconv.Atoi(strings.TrimSpace(fields[1])); err != nil || !molecule.ValidFolding(folding) {
		return 0, 0, 0, 0, errors.FormatError("folding must be zero or a power of two").WithDetail(fields[1])
	}
	if low, err = parseFloat(fields[2]); err != nil {
		return 0, 0, 0, 0, errors.FormatError("invalid low threshold").WithDetail(fields[2])
	}
	if high, err = parseFloat(fields[3]); err != nil {
		return 0, 0, 0, 0, errors.FormatError("invalid high threshold").WithDetail(fields[3])
	}
	return kind, folding, low, high, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return []float64{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := parseFloat(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// parseHash accepts unsigned decimal and, for files written by signed
// 32-bit producers, negative values reinterpreted as uint32.
func parseHash(s string) (uint32, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < math.MinInt32 || v > math.MaxUint32 {
		return 0, false
	}
	return uint32(v), true
}

type modelParser struct {
	m     *Model
	roc   *ROC
	truth *TruthTable

	aucSeen   bool
	truthSeen truthField
}

func (p *modelParser) rocSection() *ROC {
	if p.roc == nil {
		p.roc = &ROC{AUC: math.NaN()}
	}
	return p.roc
}

// truthSection returns the table being parsed and records that the line
// for f was present.
func (p *modelParser) truthSection(f truthField) *TruthTable {
	if p.truth == nil {
		p.truth = &TruthTable{}
	}
	p.truthSeen |= f
	return p.truth
}

func (p *modelParser) parseLine(line string) error {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return errors.FormatError("expected key=value")
	}
	key = strings.TrimSpace(key)
	if h, isHash := parseHash(key); isHash {
		c, err := parseFloat(value)
		if err != nil {
			return err
		}
		p.m.contribs[h] = c
		return nil
	}

	var err error
	switch key {
	case "training:size":
		p.m.trainingSize, err = atoi(value)
	case "training:actives":
		p.m.trainingActives, err = atoi(value)
	case "roc:auc":
		p.aucSeen = true
		p.rocSection().AUC, err = parseFloat(value)
	case "roc:type":
		p.rocSection().Type, err = ParseValidationType(value)
	case "roc:x":
		p.rocSection().X, err = parseFloats(value)
	case "roc:y":
		p.rocSection().Y, err = parseFloats(value)
	case "truth:TP":
		p.truthSection(truthTP).TP, err = atoi(value)
	case "truth:FP":
		p.truthSection(truthFP).FP, err = atoi(value)
	case "truth:TN":
		p.truthSection(truthTN).TN, err = atoi(value)
	case "truth:FN":
		p.truthSection(truthFN).FN, err = atoi(value)
	case "truth:precision":
		p.truthSection(truthPrecision).Precision, err = parseFloat(value)
	case "truth:recall":
		p.truthSection(truthRecall).Recall, err = parseFloat(value)
	case "truth:specificity":
		p.truthSection(truthSpecificity).Specificity, err = parseFloat(value)
	case "truth:F1":
		p.truthSection(truthF1).F1, err = parseFloat(value)
	case "truth:kappa":
		p.truthSection(truthKappa).Kappa, err = parseFloat(value)
	case "truth:MCC":
		p.truthSection(truthMCC).MCC, err = parseFloat(value)
	case "note:title":
		p.m.Notes.Title = unescapeNote(value)
	case "note:origin":
		p.m.Notes.Origin = unescapeNote(value)
	case "note:field":
		p.m.Notes.Field = unescapeNote(value)
	case "note:comment":
		p.m.Notes.Comments = append(p.m.Notes.Comments, unescapeNote(value))
	}
	return err
}

func (p *modelParser) finish() {
	if p.roc != nil && len(p.roc.X) != len(p.roc.Y) {
		// an unpaired curve is unusable; keep the AUC and type only
		p.roc.X, p.roc.Y = nil, nil
	}
	if p.roc != nil {
		p.roc.aucMissing = !p.aucSeen
	}
	if p.truth != nil {
		p.truth.missing = truthAllFields &^ p.truthSeen
	}
	p.m.roc = p.roc
	p.m.truth = p.truth
}
