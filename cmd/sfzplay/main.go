// Command sfzplay loads an SFZ instrument and plays it live from a MIDI
// input through the system's default audio output.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/mhschmieder/sfizz-juce"
	"github.com/mhschmieder/sfizz-juce/audio"
	"github.com/mhschmieder/sfizz-juce/config"
	"github.com/mhschmieder/sfizz-juce/midi"
	"github.com/mhschmieder/sfizz-juce/parser"
	"github.com/mhschmieder/sfizz-juce/sample"
	"github.com/mhschmieder/sfizz-juce/version"
)

func main() {
	sfzPath := flag.String("sfz", "", "Path to the .sfz instrument to load.")
	configPath := flag.String("config", "", "Path to a YAML host config file. Without one, built-in defaults are used.")
	midiInput := flag.String("midi-input", "", "MIDI input device name prefix to open. Overrides the config file's midi_input.")
	sampleRate := flag.Int("sr", 0, "Output sample rate. Overrides the config file's sample_rate.")
	blockSize := flag.Int("block", 0, "Render block size in frames. Overrides the config file's block_size.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if *sfzPath == "" {
		fmt.Fprintln(os.Stderr, "sfzplay: -sfz is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*sfzPath, *configPath, *midiInput, *sampleRate, *blockSize); err != nil {
		fmt.Fprintf(os.Stderr, "sfzplay: %v\n", err)
		os.Exit(1)
	}
}

func run(sfzPath, configPath, midiInputFlag string, sampleRateFlag, blockSizeFlag int) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}
	if midiInputFlag != "" {
		cfg.MidiInput = midiInputFlag
	}
	if sampleRateFlag > 0 {
		cfg.SampleRate = sampleRateFlag
	}
	if blockSizeFlag > 0 {
		cfg.BlockSize = blockSizeFlag
	}

	pool := sample.NewPool(cfg.LoadWorkers)
	synth := sfz.NewSynth(pool, cfg.Polyphony)
	synth.PrepareToPlay(float64(cfg.SampleRate), cfg.BlockSize)

	result, err := parser.Parse(sfzPath)
	if err != nil {
		return fmt.Errorf("sfz: load %s: %w", sfzPath, err)
	}
	synth.SetRegions(result.Regions, result.UnknownOpcodes, result.CCLabels, result.Curves, result.DefaultCC, result.SwDefault, result.SwDefaultSet)

	for _, op := range synth.UnknownOpcodes() {
		fmt.Fprintf(os.Stderr, "sfzplay: unknown opcode: %s\n", op)
	}
	fmt.Printf("sfzplay: loaded %d regions from %s\n", synth.GetNumRegions(), sfzPath)

	input, err := midi.Open(cfg.MidiInput)
	if err != nil {
		return err
	}
	defer input.Close()

	sink, err := audio.NewSink(synth, cfg.SampleRate, cfg.BlockSize)
	if err != nil {
		return err
	}
	defer sink.Close()
	sink.BeforeBlock = func() { input.Dispatch(synth, 0) }
	sink.Start()

	fmt.Println("sfzplay: playing, press Ctrl+C to stop")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop
	return nil
}
