// Package parser reads an SFZ instrument definition — headers, opcodes,
// #include/#define preprocessing, and hierarchical opcode inheritance —
// into a flat slice of sfz.RegionConfig plus the load-time diagnostics
// (unknown opcodes, CC labels, curve tables) Synth surfaces to a host.
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mhschmieder/sfizz-juce"
)

// Result is everything a host needs to hand to Synth.SetRegions after
// one parse pass.
type Result struct {
	Regions        []sfz.RegionConfig
	UnknownOpcodes []string
	CCLabels       map[int]string
	DefaultCC      map[int]int
	Curves         map[int]map[int]float64
	SwDefault      int
	SwDefaultSet   bool
	RootDir        string
}

// header identifies which inheritance level a block of opcodes belongs
// to.
type header int

const (
	headerNone header = iota
	headerGlobal
	headerMaster
	headerGroup
	headerRegion
	headerControl
	headerCurve
	headerEffect
)

func headerFromTag(tag string) (header, bool) {
	switch tag {
	case "global":
		return headerGlobal, true
	case "master":
		return headerMaster, true
	case "group":
		return headerGroup, true
	case "region":
		return headerRegion, true
	case "control":
		return headerControl, true
	case "curve":
		return headerCurve, true
	case "effect":
		return headerEffect, true
	}
	return headerNone, false
}

// Parse reads path (following any #include chain) and returns every
// region it defines, fully inherited, plus parse-time diagnostics.
func Parse(path string) (*Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf(`could not resolve path "%v": %v`, path, err)
	}

	pp := newPreprocessor()
	if err := pp.run(path); err != nil {
		return nil, err
	}

	res := &Result{
		CCLabels:  make(map[int]string),
		DefaultCC: make(map[int]int),
		Curves:    make(map[int]map[int]float64),
		RootDir:   filepath.Dir(abs),
	}

	globalCfg := sfz.DefaultRegionConfig()
	masterCfg := globalCfg
	groupCfg := globalCfg

	baseDir := res.RootDir

	var current header
	var regionCfg sfz.RegionConfig
	var regionUnknown []string
	haveRegion := false
	var curCurveIdx int

	flushRegion := func() {
		if haveRegion {
			regionCfg.UnknownOpcodes = regionUnknown
			res.Regions = append(res.Regions, regionCfg)
			res.UnknownOpcodes = append(res.UnknownOpcodes, regionUnknown...)
			haveRegion = false
		}
	}

	for _, ln := range pp.lines {
		for _, tok := range tokenize(ln.text) {
			if tok.isHeader {
				flushRegion()
				h, ok := headerFromTag(tok.name)
				if !ok {
					return nil, fmt.Errorf(`%v:%d: unknown header <%v>`, ln.file, ln.num, tok.name)
				}
				current = h
				switch h {
				case headerMaster:
					masterCfg = cloneRegionConfig(globalCfg)
					groupCfg = cloneRegionConfig(globalCfg)
				case headerGroup:
					groupCfg = cloneRegionConfig(masterCfg)
				case headerRegion:
					regionCfg = cloneRegionConfig(groupCfg)
					regionUnknown = nil
					haveRegion = true
				case headerCurve:
					curCurveIdx = 0
				}
				continue
			}

			switch current {
			case headerGlobal:
				if tok.name == "sw_default" {
					if n, ok := parseNote(tok.value); ok {
						res.SwDefault = sfz.Clamp(n, 0, 127)
						res.SwDefaultSet = true
					}
					continue
				}
				applyOpcode(&globalCfg, tok.name, tok.value, nil)
			case headerMaster:
				applyOpcode(&masterCfg, tok.name, tok.value, nil)
			case headerGroup:
				applyOpcode(&groupCfg, tok.name, tok.value, nil)
			case headerRegion:
				applyOpcode(&regionCfg, tok.name, tok.value, &regionUnknown)
			case headerControl:
				applyControlOpcode(res, baseDir, tok.name, tok.value)
			case headerCurve:
				applyCurveOpcode(res, &curCurveIdx, tok.name, tok.value)
			default:
				// Opcodes before any header, or inside <effect>, don't
				// touch region state; <effect> processing (reverb/eq
				// sends) is out of scope for this engine.
			}
		}
	}
	flushRegion()

	for i := range res.Regions {
		id := res.Regions[i].SampleID
		if id != "" && !strings.HasPrefix(id, "*") {
			res.Regions[i].SampleID = filepath.Join(res.RootDir, filepath.FromSlash(id))
		}
	}

	return res, nil
}

// token is one header or opcode=value pair extracted from a line.
type token struct {
	isHeader bool
	name     string
	value    string
}

// tokenize splits a preprocessed line into header and opcode tokens.
// Headers and opcodes may share a line (a header tag followed inline by
// its first opcodes), so this walks the line left to right rather than
// just splitting on whitespace.
func tokenize(line string) []token {
	var toks []token
	for len(line) > 0 {
		line = strings.TrimLeft(line, " \t")
		if line == "" {
			break
		}
		if line[0] == '<' {
			end := strings.IndexByte(line, '>')
			if end < 0 {
				break
			}
			toks = append(toks, token{isHeader: true, name: strings.ToLower(line[1:end])})
			line = line[end+1:]
			continue
		}
		// an opcode's value may contain spaces (labels, file names): it
		// runs on, word by word, until the next word that opens a header
		// or holds another opcode's "=".
		sp := strings.IndexAny(line, " \t")
		var field string
		if sp < 0 {
			field = line
			line = ""
		} else {
			field = line[:sp]
			line = line[sp+1:]
		}
		name, value, ok := strings.Cut(field, "=")
		if !ok || name == "" {
			continue
		}
		for {
			rest := strings.TrimLeft(line, " \t")
			end := strings.IndexAny(rest, " \t")
			if end < 0 {
				end = len(rest)
			}
			if end == 0 || rest[0] == '<' || strings.Contains(rest[:end], "=") {
				break
			}
			value += " " + rest[:end]
			line = rest[end:]
		}
		toks = append(toks, token{name: strings.ToLower(name), value: value})
	}
	return toks
}

func applyControlOpcode(res *Result, baseDir, name, value string) {
	switch {
	case name == "default_path":
		res.RootDir = filepath.Join(baseDir, filepath.FromSlash(value))
	case strings.HasPrefix(name, "label_cc"):
		if cc, ok := parseInt(strings.TrimPrefix(name, "label_cc")); ok {
			res.CCLabels[cc] = value
		}
	case strings.HasPrefix(name, "set_cc"):
		if cc, ok := parseInt(strings.TrimPrefix(name, "set_cc")); ok {
			if v, ok := parseInt(value); ok {
				res.DefaultCC[cc] = v
			}
		}
	}
}

func applyCurveOpcode(res *Result, curCurveIdx *int, name, value string) {
	if strings.HasPrefix(name, "curve_index") {
		if n, ok := parseInt(value); ok {
			*curCurveIdx = n
		}
		return
	}
	if strings.HasPrefix(name, "v") {
		if point, ok := parseInt(strings.TrimPrefix(name, "v")); ok {
			if v, ok := parseFloat(value); ok {
				if res.Curves[*curCurveIdx] == nil {
					res.Curves[*curCurveIdx] = make(map[int]float64)
				}
				res.Curves[*curCurveIdx][point] = v
			}
		}
	}
}
