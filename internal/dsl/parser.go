package dsl

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/maetyu-d/jamal/internal/lexer"
	"github.com/maetyu-d/jamal/internal/pitch"
)

// Parse compiles a script into a Program. It never mutates anything but
// its own scratch state; callers own the atomic swap into a live Engine.
func Parse(script string) (*Program, error) {
	p := NewProgram()
	lines := lexer.Split(script)

	for _, ln := range lines {
		toks := lexer.Tokens(ln.Text)
		if len(toks) == 0 {
			continue
		}
		cmd, rest := toks[0], toks[1:]
		var err error
		switch cmd {
		case "tempo":
			err = parseTempo(p, ln.Number, rest)
		case "master", "master_amp":
			err = parseMaster(p, ln.Number, rest)
		case "amp":
			err = parseAmp(p, ln.Number, rest)
		case "tempo_scale":
			err = parseTempoScale(p, ln.Number, rest)
		case "tempo_map":
			err = parseTempoMap(p, ln.Number, rest)
		case "timesig", "time_signature":
			err = parseTimesig(p, ln.Number, rest)
		case "timesig_enforce":
			err = parseTimesigEnforce(p, ln.Number, rest)
		case "timesig_map":
			err = parseTimesigMap(p, ln.Number, rest)
		case "timesig_seq":
			err = parseTimesigSeq(p, ln.Number, rest)
		case "root":
			err = parseRoot(p, ln.Number, rest)
		case "maqam":
			err = parseMaqam(p, ln.Number, rest)
		case "drone":
			err = parseDrone(p, ln.Number, rest)
		case "synth":
			err = parseSynth(p, ln.Number, rest)
		case "set":
			err = parseSet(p, ln.Number, rest)
		case "mod":
			err = parseMod(p, ln.Number, rest)
		case "pattern":
			err = parsePatternCmd(p, ln.Number, rest)
		case "accent":
			err = parseAccent(p, ln.Number, rest)
		case "sequence":
			err = parseSequence(p, ln.Number, rest)
		case "play":
			err = parsePlay(p, ln.Number, rest, false)
		case "playseq":
			err = parsePlay(p, ln.Number, rest, true)
		default:
			err = lineErr(ln.Number, "unknown command '%s'", cmd)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(p.Tracks) == 0 {
		return nil, fmt.Errorf("No play command found")
	}
	return p, nil
}

func lineErr(line int, format string, args ...any) error {
	return fmt.Errorf("Line %d: %s", line, fmt.Sprintf(format, args...))
}

func atof(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func parseTempo(p *Program, line int, rest []string) error {
	if len(rest) < 1 {
		return lineErr(line, "tempo requires a value")
	}
	bpm := atof(rest[0])
	if bpm < 20 || bpm > 300 {
		return lineErr(line, "tempo out of range")
	}
	p.Tempo = bpm * p.TempoScale
	return nil
}

func parseMaster(p *Program, line int, rest []string) error {
	if len(rest) < 1 {
		return lineErr(line, "master requires a value")
	}
	v := atof(rest[0])
	if v < 0 || v > 4 {
		return lineErr(line, "master out of range")
	}
	p.MasterAmp = v
	return nil
}

func parseAmp(p *Program, line int, rest []string) error {
	if len(rest) < 1 {
		return lineErr(line, "amp requires a value")
	}
	p.MasterAmp = atof(rest[0])
	return nil
}

func parseTempoScale(p *Program, line int, rest []string) error {
	if len(rest) < 1 {
		return lineErr(line, "tempo_scale requires a value")
	}
	v := atof(rest[0])
	if v <= 0 || v > 8 {
		return lineErr(line, "tempo_scale out of range")
	}
	p.TempoScale = v
	return nil
}

func splitKeyVal(s string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' }) {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func sectionAliases(key string) []int {
	switch key {
	case "intro":
		return []int{1}
	case "verse":
		return []int{2, 4}
	case "chorus":
		return []int{3, 5}
	case "bridge":
		return []int{6}
	case "final":
		return []int{7}
	}
	return nil
}

func parseTempoMap(p *Program, line int, rest []string) error {
	if len(rest) < 1 {
		return lineErr(line, "tempo_map requires values")
	}
	for _, token := range splitKeyVal(strings.Join(rest, " ")) {
		eq := strings.IndexByte(token, '=')
		if eq < 0 {
			return lineErr(line, "tempo_map expects key=value")
		}
		key, valStr := token[:eq], token[eq+1:]
		val := atof(valStr)
		if val <= 0 || val > 4 {
			return lineErr(line, "tempo_map value out of range")
		}
		if idxs := sectionAliases(key); idxs != nil {
			for _, i := range idxs {
				p.TempoMap[i] = val
			}
			continue
		}
		if len(key) > 0 && key[0] >= '0' && key[0] <= '9' {
			idx := atoi(key)
			if idx < 1 || idx > 14 {
				return lineErr(line, "tempo_map index must be 1-14")
			}
			p.TempoMap[idx] = val
			continue
		}
		return lineErr(line, "unknown tempo_map key '%s'", key)
	}
	return nil
}

func parseTimeSigToken(s string) (num, den int, ok bool) {
	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return 0, 0, false
	}
	numStr, denStr := s[:slash], s[slash+1:]
	if numStr == "" {
		return 0, 0, false
	}
	n, err1 := strconv.Atoi(numStr)
	d, err2 := strconv.Atoi(denStr)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if n < 1 || n > 32 {
		return 0, 0, false
	}
	switch d {
	case 1, 2, 4, 8, 16, 32:
	default:
		return 0, 0, false
	}
	return n, d, true
}

func parseTimesig(p *Program, line int, rest []string) error {
	if len(rest) < 1 {
		return lineErr(line, "timesig requires a value")
	}
	var combined string
	if strings.Contains(rest[0], "/") {
		combined = rest[0]
	} else {
		if len(rest) < 2 {
			return lineErr(line, "timesig requires numerator/denominator")
		}
		combined = rest[0] + "/" + rest[1]
	}
	num, den, ok := parseTimeSigToken(combined)
	if !ok {
		return lineErr(line, "invalid timesig '%s'", combined)
	}
	p.TimeSigNum, p.TimeSigDen = num, den
	for i := 1; i <= 14; i++ {
		p.TimeSigNumMap[i] = num
		p.TimeSigDenMap[i] = den
	}
	return nil
}

func parseTimesigEnforce(p *Program, line int, rest []string) error {
	if len(rest) < 1 {
		return lineErr(line, "timesig_enforce requires on/off")
	}
	switch rest[0] {
	case "on", "true", "1":
		p.TimeSigEnforce = true
	case "off", "false", "0":
		p.TimeSigEnforce = false
	default:
		return lineErr(line, "timesig_enforce expects on/off")
	}
	return nil
}

func parseTimesigMap(p *Program, line int, rest []string) error {
	if len(rest) < 1 {
		return lineErr(line, "timesig_map requires values")
	}
	for _, token := range splitKeyVal(strings.Join(rest, " ")) {
		eq := strings.IndexByte(token, '=')
		if eq < 0 {
			return lineErr(line, "timesig_map expects key=value")
		}
		key, valStr := token[:eq], token[eq+1:]
		num, den, ok := parseTimeSigToken(valStr)
		if !ok {
			return lineErr(line, "invalid timesig '%s'", valStr)
		}
		if idxs := sectionAliases(key); idxs != nil {
			for _, i := range idxs {
				p.TimeSigNumMap[i] = num
				p.TimeSigDenMap[i] = den
			}
			continue
		}
		if len(key) > 0 && key[0] >= '0' && key[0] <= '9' {
			idx := atoi(key)
			if idx < 1 || idx > 14 {
				return lineErr(line, "timesig_map index must be 1-14")
			}
			p.TimeSigNumMap[idx] = num
			p.TimeSigDenMap[idx] = den
			continue
		}
		return lineErr(line, "unknown timesig_map key '%s'", key)
	}
	return nil
}

// parseTimesigSeq implements the supplemented `timesig_seq` command
// (SPEC_FULL.md §4.3a), filling Program.TimeSigSeq.
func parseTimesigSeq(p *Program, line int, rest []string) error {
	if len(rest) < 1 {
		return lineErr(line, "timesig_seq requires values")
	}
	for _, token := range rest {
		num, den, ok := parseTimeSigToken(token)
		if !ok {
			return lineErr(line, "invalid timesig '%s'", token)
		}
		if len(p.TimeSigSeq) >= maxTimeSigSeq {
			return lineErr(line, "too many timesig_seq entries (max %d)", maxTimeSigSeq)
		}
		p.TimeSigSeq = append(p.TimeSigSeq, TimeSig{Num: num, Den: den})
	}
	return nil
}

func parseRoot(p *Program, line int, rest []string) error {
	if len(rest) < 1 {
		return lineErr(line, "root requires a note")
	}
	midi := pitch.NoteNameToMIDI(rest[0])
	if midi == pitch.InvalidMIDI {
		return lineErr(line, "invalid root '%s'", rest[0])
	}
	p.RootMIDI = float64(midi)
	return nil
}

func parseMaqam(p *Program, line int, rest []string) error {
	if len(rest) < 1 {
		return lineErr(line, "maqam requires a name")
	}
	if table, ok := pitch.Maqams[rest[0]]; ok {
		p.Maqam = table
	}
	return nil
}

func parseDrone(p *Program, line int, rest []string) error {
	if len(p.Drones) >= maxDrones {
		return lineErr(line, "too many drones")
	}
	if len(rest) < 2 {
		return lineErr(line, "drone requires synth and note/degree")
	}
	synth, note := rest[0], rest[1]
	var midi float64
	if info, ok := pitch.ParseDegreeToken(note, p.RootMIDI, p.Maqam); ok {
		midi = info.MIDI
	} else {
		m := pitch.NoteNameToMIDI(note)
		if m == pitch.InvalidMIDI {
			return lineErr(line, "invalid drone note '%s'", note)
		}
		midi = float64(m)
	}
	p.Drones = append(p.Drones, DroneDef{Synth: synth, MIDI: midi})
	return nil
}

func parseSynth(p *Program, line int, rest []string) error {
	if len(p.Synths) >= maxSynths {
		return lineErr(line, "too many synths")
	}
	if len(rest) < 2 {
		return lineErr(line, "synth requires name and type")
	}
	name, typeTok := rest[0], rest[1]
	typ, ok := ParseSynthType(typeTok)
	if !ok {
		return lineErr(line, "unknown synth type '%s'", typeTok)
	}
	p.Synths = append(p.Synths, defaultSynthDef(name, typ))
	return nil
}

func parseSet(p *Program, line int, rest []string) error {
	if len(rest) < 3 {
		return lineErr(line, "set requires synth, param, value")
	}
	name, param, valueTok := rest[0], rest[1], rest[2]
	idx := p.FindSynth(name)
	if idx < 0 {
		return lineErr(line, "unknown synth '%s'", name)
	}
	v := atof(valueTok)
	s := &p.Synths[idx]
	switch param {
	case "amp":
		s.Amp = v
	case "cutoff":
		s.Cutoff = v
	case "res":
		s.Res = v
	case "atk":
		s.Atk = v
	case "dec":
		s.Dec = v
	case "sus":
		s.Sus = v
	case "rel":
		s.Rel = v
	case "feedback":
		s.CombFeedback = v
	case "damp":
		s.CombDamp = v
	case "excite":
		s.CombExcite = v
	case "detune_rate":
		s.DetuneRate = v
	case "detune_depth":
		s.DetuneDepth = v
	case "drive":
		s.Drive = v
	default:
		return lineErr(line, "unknown param '%s'", param)
	}
	return nil
}

func parseMod(p *Program, line int, rest []string) error {
	if len(rest) < 5 {
		return lineErr(line, "mod requires synth dest source rate depth [offset] [lag] [slew]")
	}
	synthName, destTok, srcTok, rateTok, depthTok := rest[0], rest[1], rest[2], rest[3], rest[4]
	idx := p.FindSynth(synthName)
	if idx < 0 {
		return lineErr(line, "unknown synth '%s'", synthName)
	}
	s := &p.Synths[idx]
	if len(s.Mods) >= maxModsPerSynth {
		return lineErr(line, "too many mods for synth '%s' (max %d)", synthName, maxModsPerSynth)
	}
	dest, ok := modDestNames[destTok]
	if !ok {
		return lineErr(line, "unknown mod dest '%s'", destTok)
	}
	src, ok := modSourceNames[srcTok]
	if !ok {
		return lineErr(line, "unknown mod source '%s'", srcTok)
	}
	m := ModDef{Dest: dest, Source: src, Rate: atof(rateTok), Depth: atof(depthTok)}
	if len(rest) > 5 {
		m.Offset = atof(rest[5])
	}
	if len(rest) > 6 {
		m.LagMs = atof(rest[6])
	}
	if len(rest) > 7 {
		m.SlewMs = atof(rest[7])
	}
	s.Mods = append(s.Mods, m)
	return nil
}

func splitCommaOrSpace(s string) []string {
	return splitKeyVal(s)
}

func parsePatternCmd(p *Program, line int, rest []string) error {
	if len(p.Patterns) >= maxPatterns {
		return lineErr(line, "too many patterns")
	}
	if len(rest) < 2 {
		return lineErr(line, "pattern requires name and sequence in () or \"\"")
	}
	name := rest[0]
	body := strings.Join(rest[1:], " ")
	pat := PatternDef{Name: name}
	for i := range pat.SlideMs {
		pat.SlideMs[i] = -1
	}
	if err := parsePatternBody(body, &pat, p); err != nil {
		return lineErr(line, "%s", err.Error())
	}
	if err := padPatternToTimesig(p, &pat); err != nil {
		return lineErr(line, "%s", err.Error())
	}
	p.Patterns = append(p.Patterns, pat)
	return nil
}

func padPatternToTimesig(p *Program, pat *PatternDef) error {
	if !p.TimeSigEnforce {
		return nil
	}
	// A non-empty time_sig_seq overrides the section-indexed signature for
	// the evaluation at this absolute step count (SPEC_FULL.md §3); absent
	// an entry, fall back to the globally-set timesig.
	num, den := p.TimeSigNum, p.TimeSigDen
	if seq := p.TimeSigSeq; pat.Length < len(seq) {
		num, den = seq[pat.Length].Num, seq[pat.Length].Den
	}
	if num <= 0 || den <= 0 {
		return nil
	}
	if 16%den != 0 {
		return nil
	}
	barSteps := num * (16 / den)
	if barSteps <= 0 {
		return nil
	}
	rem := pat.Length % barSteps
	if rem == 0 {
		return nil
	}
	pad := barSteps - rem
	if pat.Length+pad > maxPatternLen {
		return fmt.Errorf("Pattern too long after timesig pad (max %d)", maxPatternLen)
	}
	for i := 0; i < pad; i++ {
		idx := pat.Length
		pat.Note[idx] = -1
		pat.Cents[idx] = 0
		pat.DegreeValid[idx] = false
		pat.Degree[idx] = 0
		pat.DegreeOctave[idx] = 0
		pat.DegreeMicro[idx] = 0
		pat.SlideMs[idx] = -1
		pat.Accent[idx] = false
		pat.Length++
	}
	return nil
}

// parsePatternBody dispatches to the bracket-list or space-list form
// (§4.3, §9 — the two forms deliberately differ: only the space-list
// form accepts scale-degree tokens).
func parsePatternBody(body string, pat *PatternDef, prog *Program) error {
	if strings.Contains(body, "[") {
		return parsePatternBracketList(body, pat)
	}
	return parsePatternSpaceList(body, pat, prog)
}

func appendStep(pat *PatternDef, note int, cents float64, degValid bool, deg, oct, micro int, slide float64, accent bool) error {
	if pat.Length >= maxPatternLen {
		return fmt.Errorf("Pattern too long (max %d)", maxPatternLen)
	}
	i := pat.Length
	pat.Note[i] = note
	pat.Cents[i] = cents
	pat.DegreeValid[i] = degValid
	pat.Degree[i] = deg
	pat.DegreeOctave[i] = oct
	pat.DegreeMicro[i] = micro
	pat.SlideMs[i] = slide
	pat.Accent[i] = accent
	pat.Length++
	return nil
}

func parsePatternBracketList(body string, pat *PatternDef) error {
	open := strings.IndexByte(body, '[')
	close := -1
	if open >= 0 {
		if j := strings.IndexByte(body[open:], ']'); j >= 0 {
			close = open + j
		}
	}
	if open < 0 || close < 0 || close <= open {
		return fmt.Errorf("Pattern list must be like [60, 62, 64]")
	}
	listBody := body[open+1 : close]

	type baseStep struct {
		note    int
		slide   float64
		accent  bool
	}
	var steps []baseStep
	for _, token := range splitCommaOrSpace(listBody) {
		base, slide, accent := pitch.SplitTokenSlide(token)
		if base == "." || base == "-" {
			steps = append(steps, baseStep{note: -1, slide: slide, accent: accent})
			continue
		}
		midi := pitch.NoteNameToMIDI(base)
		if midi == pitch.InvalidMIDI {
			return fmt.Errorf("Invalid note token '%s'", base)
		}
		steps = append(steps, baseStep{note: midi, slide: slide, accent: accent})
	}
	if len(steps) == 0 {
		return fmt.Errorf("Pattern must have at least one step")
	}

	repeat := 1
	after := strings.TrimLeft(body[close+1:], " \t,)")
	if after != "" {
		fields := strings.Fields(after)
		repTok := after
		if len(fields) > 0 {
			repTok = fields[0]
		}
		if repTok == "inf" {
			repeat = 1
		} else {
			repeat = atoi(repTok)
			if repeat < 1 {
				return fmt.Errorf("Repeat must be >= 1 or 'inf'")
			}
		}
	}

	for r := 0; r < repeat; r++ {
		for _, st := range steps {
			if err := appendStep(pat, st.note, 0, false, 0, 0, 0, st.slide, st.accent); err != nil {
				return err
			}
		}
	}
	return nil
}

func parsePatternSpaceList(body string, pat *PatternDef, prog *Program) error {
	tokens := splitCommaOrSpace(body)
	for _, token := range tokens {
		base, slide, accent := pitch.SplitTokenSlide(token)
		if base == "." || base == "-" {
			if err := appendStep(pat, -1, 0, false, 0, 0, 0, slide, accent); err != nil {
				return err
			}
			continue
		}
		if info, ok := pitch.ParseDegreeToken(base, prog.RootMIDI, prog.Maqam); ok {
			note := int(math.Floor(info.MIDI))
			cents := (info.MIDI - math.Floor(info.MIDI)) * 100
			if err := appendStep(pat, note, cents, true, info.Degree, info.Octave, info.Micro, slide, accent); err != nil {
				return err
			}
			continue
		}
		midi := pitch.NoteNameToMIDI(base)
		if midi == pitch.InvalidMIDI {
			return fmt.Errorf("Invalid note token '%s'", base)
		}
		if err := appendStep(pat, midi, 0, false, 0, 0, 0, slide, accent); err != nil {
			return err
		}
	}
	if pat.Length == 0 {
		return fmt.Errorf("Pattern must have at least one step")
	}
	return nil
}

func parseAccent(p *Program, line int, rest []string) error {
	if len(rest) < 2 {
		return lineErr(line, "accent requires pattern name and mask")
	}
	name := rest[0]
	mask := strings.Join(rest[1:], " ")
	idx := p.FindPattern(name)
	if idx < 0 {
		return lineErr(line, "unknown pattern '%s'", name)
	}
	pat := &p.Patterns[idx]
	toks := splitCommaOrSpace(mask)
	for i := 0; i < len(toks) && i < pat.Length; i++ {
		switch toks[i] {
		case "1", "!", "acc":
			pat.Accent[i] = true
		default:
			pat.Accent[i] = false
		}
	}
	return nil
}

func parseSequence(p *Program, line int, rest []string) error {
	if len(p.Sequences) >= maxSequences {
		return lineErr(line, "too many sequences")
	}
	if len(rest) < 2 {
		return lineErr(line, "sequence requires name and list in ()")
	}
	name := rest[0]
	body := strings.Join(rest[1:], " ")
	seq := SequenceDef{Name: name}
	for _, token := range splitCommaOrSpace(body) {
		if len(seq.Steps) >= maxSequenceSteps {
			return lineErr(line, "sequence too long")
		}
		repeat := 1
		patName := token
		if star := strings.IndexByte(token, '*'); star >= 0 {
			patName = token[:star]
			repeat = atoi(token[star+1:])
			if repeat < 1 {
				repeat = 1
			}
		}
		seq.Steps = append(seq.Steps, SequenceStep{Pattern: patName, Repeat: repeat})
	}
	if len(seq.Steps) == 0 {
		return lineErr(line, "sequence needs at least one pattern")
	}
	p.Sequences = append(p.Sequences, seq)
	return nil
}

var playValueOptions = map[string]bool{
	"rate": true, "fast": true, "slow": true, "every": true, "density": true,
	"hurry": true, "iter": true, "chunk": true, "stut": true, "slide": true, "acc": true,
}

func parsePlay(p *Program, line int, rest []string, isSeq bool) error {
	if len(p.Tracks) >= maxTracks {
		return lineErr(line, "too many tracks")
	}
	reqMsg := "play requires pattern and synth"
	if isSeq {
		reqMsg = "playseq requires sequence and synth"
	}
	if len(rest) < 2 {
		return lineErr(line, "%s", reqMsg)
	}
	ref, synth := rest[0], rest[1]
	track := defaultTrackDef()
	track.Synth = synth
	if isSeq {
		track.IsSequence = true
		track.Sequence = ref
	} else {
		track.Pattern = ref
	}

	opts := rest[2:]
	i := 0
	next := func() (string, bool) {
		if i >= len(opts) {
			return "", false
		}
		v := opts[i]
		i++
		return v, true
	}
	unknownFmt := "unknown play option '%s'"
	if isSeq {
		unknownFmt = "unknown playseq option '%s'"
	}

	for i < len(opts) {
		token, _ := next()
		switch {
		case token == "rev":
			track.Rev = true
		case token == "palindrome":
			track.Palindrome = true
		case token == "only":
			rangeTok, ok := next()
			if !ok {
				return lineErr(line, "only requires a range (e.g., 6-7)")
			}
			start, end, ok := parseOnlyRange(rangeTok)
			if !ok {
				return lineErr(line, "invalid only range '%s'", rangeTok)
			}
			track.SeqStart, track.SeqEnd = start, end
		case token == "orn" || token == "ornament":
			valTok, ok := next()
			if !ok {
				return lineErr(line, "%s requires a value", token)
			}
			track.OrnamentProb = clamp01(atof(valTok))
			if i < len(opts) {
				switch opts[i] {
				case "up":
					track.OrnamentMode = OrnamentUp
					i++
				case "down":
					track.OrnamentMode = OrnamentDown
					i++
				case "alt":
					track.OrnamentMode = OrnamentAlt
					i++
				}
			}
		case playValueOptions[token]:
			valTok, ok := next()
			if !ok {
				return lineErr(line, "%s requires a value", token)
			}
			if err := applyPlayValueOption(&track, token, valTok, line, isSeq); err != nil {
				return err
			}
		default:
			return lineErr(line, unknownFmt, token)
		}
	}

	p.Tracks = append(p.Tracks, track)
	return nil
}

func parseOnlyRange(tok string) (start, end int, ok bool) {
	dash := strings.IndexByte(tok, '-')
	if dash <= 0 {
		return 0, 0, false
	}
	s, err1 := strconv.Atoi(tok[:dash])
	e, err2 := strconv.Atoi(tok[dash+1:])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return s, e, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// applyPlayValueOption applies one of rate/fast/slow/every/density/hurry/
// iter/chunk/stut/slide/acc. Only `play` (not `playseq`) validates ranges
// with a hard error for rate/hurry/slide/fast/slow/every/iter/chunk/stut;
// this asymmetry exists in the reference and is preserved (see DESIGN.md).
func applyPlayValueOption(track *TrackDef, token, valTok string, line int, isSeq bool) error {
	v := atof(valTok)
	switch token {
	case "rate":
		track.Rate = v
		if !isSeq && track.Rate <= 0 {
			return lineErr(line, "rate must be > 0")
		}
	case "hurry":
		track.Hurry = v
		if !isSeq && track.Hurry <= 0 {
			return lineErr(line, "hurry must be > 0")
		}
	case "fast":
		track.Fast = atoi(valTok)
		if !isSeq && track.Fast < 1 {
			return lineErr(line, "fast must be >= 1")
		}
	case "slow":
		track.Slow = atoi(valTok)
		if !isSeq && track.Slow < 1 {
			return lineErr(line, "slow must be >= 1")
		}
	case "every":
		track.Every = atoi(valTok)
		if !isSeq && track.Every < 1 {
			return lineErr(line, "every must be >= 1")
		}
	case "density":
		track.Density = v
		if !isSeq {
			track.Density = clamp01(track.Density)
		}
	case "iter":
		track.Iter = atoi(valTok)
		if !isSeq && track.Iter < 1 {
			return lineErr(line, "iter must be >= 1")
		}
	case "chunk":
		track.Chunk = atoi(valTok)
		if !isSeq && track.Chunk < 0 {
			return lineErr(line, "chunk must be >= 0")
		}
	case "stut":
		track.Stut = atoi(valTok)
		if !isSeq && track.Stut < 1 {
			return lineErr(line, "stut must be >= 1")
		}
	case "slide":
		track.SlideMs = v
		if !isSeq && track.SlideMs < 0 {
			return lineErr(line, "slide must be >= 0")
		}
	case "acc":
		track.AccentProb = clamp01(v)
	}
	return nil
}
