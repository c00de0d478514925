package parser_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mhschmieder/sfizz-juce"
	"github.com/mhschmieder/sfizz-juce/parser"
)

func writeFixture(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing fixture %s: %v", path, err)
	}
	return path
}

func TestParseSingleRegion(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "one.sfz", `
<region>
sample=kick.wav
lokey=36
hikey=36
`)
	result, err := parser.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Regions) != 1 {
		t.Fatalf("len(Regions) = %d, want 1", len(result.Regions))
	}
	region := result.Regions[0]
	if region.KeyRange != (sfz.Range{Lo: 36, Hi: 36}) {
		t.Fatalf("KeyRange = %v, want {36 36}", region.KeyRange)
	}
	want := filepath.Join(result.RootDir, "kick.wav")
	if region.SampleID != want {
		t.Fatalf("SampleID = %q, want %q", region.SampleID, want)
	}
}

func TestParseGlobalMasterGroupInheritance(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "inherit.sfz", `
<global>
ampeg_release=0.3

<master>
group=1

<group>
hivel=100

<region>
sample=a.wav
lokey=60
hikey=60

<group>
hivel=64

<region>
sample=b.wav
lokey=61
hikey=61
`)
	result, err := parser.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Regions) != 2 {
		t.Fatalf("len(Regions) = %d, want 2", len(result.Regions))
	}
	for i, want := range []int{100, 64} {
		if got := result.Regions[i].VelRange.Hi; got != want {
			t.Fatalf("Regions[%d].VelRange.Hi = %d, want %d", i, got, want)
		}
		if got := result.Regions[i].EG.Amp.Release; got != 0.3 {
			t.Fatalf("Regions[%d].EG.Amp.Release = %v, want 0.3 (inherited from <global>)", i, got)
		}
		if got := result.Regions[i].Group; got != 1 {
			t.Fatalf("Regions[%d].Group = %d, want 1 (inherited from <master>)", i, got)
		}
	}
}

func TestParseGroupOpcodeDoesNotLeakAcrossRegions(t *testing.T) {
	// Regression test for a bug where header-level inheritance shared the
	// RegionConfig's map/slice fields by reference: a region-level opcode
	// on one region must never mutate an earlier region's config.
	dir := t.TempDir()
	path := writeFixture(t, dir, "noleak.sfz", `
<region>
sample=a.wav
locc10=20

<region>
sample=b.wav
locc10=90
`)
	result, err := parser.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Regions) != 2 {
		t.Fatalf("len(Regions) = %d, want 2", len(result.Regions))
	}
	if got := result.Regions[0].CCConditions[10].Lo; got != 20 {
		t.Fatalf("Regions[0].CCConditions[10].Lo = %d, want 20 (must not be overwritten by Regions[1])", got)
	}
	if got := result.Regions[1].CCConditions[10].Lo; got != 90 {
		t.Fatalf("Regions[1].CCConditions[10].Lo = %d, want 90", got)
	}
}

func TestParseControlHeaderOpcodes(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "control.sfz", `
<control>
label_cc1=Mod Wheel
set_cc7=100

<region>
sample=a.wav
`)
	result, err := parser.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if result.CCLabels[1] != "Mod Wheel" {
		t.Fatalf("CCLabels[1] = %q, want %q", result.CCLabels[1], "Mod Wheel")
	}
	if result.DefaultCC[7] != 100 {
		t.Fatalf("DefaultCC[7] = %d, want 100", result.DefaultCC[7])
	}
}

func TestParseUnknownOpcodeIsCollectedNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "unknown.sfz", `
<region>
sample=a.wav
totally_made_up_opcode=7
`)
	result, err := parser.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.UnknownOpcodes) != 1 {
		t.Fatalf("len(UnknownOpcodes) = %d, want 1", len(result.UnknownOpcodes))
	}
}

func TestParseInclude(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "shared.sfzi", `
<region>
sample=included.wav
lokey=10
hikey=10
`)
	path := writeFixture(t, dir, "main.sfz", `#include "shared.sfzi"`)

	result, err := parser.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Regions) != 1 {
		t.Fatalf("len(Regions) = %d, want 1", len(result.Regions))
	}
	if result.Regions[0].KeyRange.Lo != 10 {
		t.Fatalf("included region KeyRange.Lo = %d, want 10", result.Regions[0].KeyRange.Lo)
	}
}

func TestParseDefine(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "define.sfz", `
#define $KEY 48
<region>
sample=a.wav
lokey=$KEY
hikey=$KEY
`)
	result, err := parser.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if result.Regions[0].KeyRange != (sfz.Range{Lo: 48, Hi: 48}) {
		t.Fatalf("KeyRange = %v, want {48 48} after $KEY substitution", result.Regions[0].KeyRange)
	}
}

func TestParseNoteNameOpcodeValue(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "notename.sfz", `
<region>
sample=a.wav
key=c4
`)
	result, err := parser.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if result.Regions[0].KeyRange != (sfz.Range{Lo: 60, Hi: 60}) {
		t.Fatalf("KeyRange = %v, want {60 60} for key=c4", result.Regions[0].KeyRange)
	}
	if result.Regions[0].PitchKeycenter != 60 {
		t.Fatalf("PitchKeycenter = %d, want 60", result.Regions[0].PitchKeycenter)
	}
	if result.Regions[0].AmpKeycenter != 60 {
		t.Fatalf("AmpKeycenter = %d, want 60", result.Regions[0].AmpKeycenter)
	}
}

func TestParseAmpegOncc(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "oncc.sfz", `
<region>
sample=a.wav
ampeg_decay_oncc3=1.5
`)
	result, err := parser.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	eg := result.Regions[0].EG.Amp
	if len(eg.CCDecay) != 1 || eg.CCDecay[0].CC != 3 || eg.CCDecay[0].Depth != 1.5 {
		t.Fatalf("CCDecay = %v, want [{3 1.5}]", eg.CCDecay)
	}
}

func TestParseClampsOutOfRangeValues(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "clamp.sfz", `
<region>
sample=a.wav
volume=99
lochan=0
hichan=20
seq_length=200
`)
	result, err := parser.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	r := result.Regions[0]
	if r.VolumeDB != 6 {
		t.Fatalf("VolumeDB = %v, want 6 (clamped to the +6 dB ceiling)", r.VolumeDB)
	}
	if r.ChannelRange != (sfz.Range{Lo: 1, Hi: 16}) {
		t.Fatalf("ChannelRange = %v, want {1 16} (clamped to [1,16])", r.ChannelRange)
	}
	if r.SeqLength != 100 {
		t.Fatalf("SeqLength = %d, want 100 (clamped to the [1,100] ceiling)", r.SeqLength)
	}
}

func TestParseCountNegativeOneMapsToZero(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "count.sfz", `
<region>
sample=a.wav
count=-1
`)
	result, err := parser.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	r := result.Regions[0]
	if !r.HasPlayCount {
		t.Fatalf("HasPlayCount = false, want true (count=-1 keeps the optional present)")
	}
	if r.PlayCount != 0 {
		t.Fatalf("PlayCount = %d, want 0", r.PlayCount)
	}
}

func TestParseSwDefaultInGlobal(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "swdefault.sfz", `
<global>
sw_default=c4

<region>
sample=a.wav
sw_last=c4
`)
	result, err := parser.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !result.SwDefaultSet {
		t.Fatalf("SwDefaultSet = false, want true for a <global> sw_default")
	}
	if result.SwDefault != 60 {
		t.Fatalf("SwDefault = %d, want 60 for sw_default=c4", result.SwDefault)
	}
}

func TestParseUnknownHeaderErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "badheader.sfz", `<bogus>
foo=1
`)
	if _, err := parser.Parse(path); err == nil {
		t.Fatalf("expected an error for an unrecognized header")
	}
}
