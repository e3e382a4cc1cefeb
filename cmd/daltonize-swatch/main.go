package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/muesli/termenv"

	"daltonize-go/internal/colorblind"
	"daltonize-go/internal/types"
)

type swatch struct {
	name string
	rgb  [3]uint8
}

var reference = []swatch{
	{"red", [3]uint8{255, 0, 0}},
	{"green", [3]uint8{0, 255, 0}},
	{"blue", [3]uint8{0, 0, 255}},
	{"yellow", [3]uint8{255, 255, 0}},
	{"cyan", [3]uint8{0, 255, 255}},
	{"magenta", [3]uint8{255, 0, 255}},
	{"orange", [3]uint8{255, 165, 0}},
	{"purple", [3]uint8{128, 0, 128}},
	{"brown", [3]uint8{150, 75, 0}},
	{"pink", [3]uint8{255, 192, 203}},
	{"skin", [3]uint8{200, 100, 50}},
	{"gray", [3]uint8{128, 128, 128}},
}

type row struct {
	name      string
	original  [3]uint8
	simulated [3]uint8
	corrected [3]uint8
}

func main() {
	modeName := flag.String("mode", "all", "Mode to show, or all")
	flag.Parse()

	var modes []colorblind.Mode
	if *modeName == "all" {
		modes = colorblind.Modes()[1:]
	} else {
		mode, err := colorblind.ParseMode(*modeName)
		if err != nil {
			log.Fatal(err)
		}
		if mode == colorblind.None {
			log.Fatal("mode none has nothing to compare")
		}
		modes = []colorblind.Mode{mode}
	}

	out := termenv.NewOutput(os.Stdout)
	for _, mode := range modes {
		render(out, out, mode, table(mode))
	}
}

// table runs every reference color through the pipeline as one frame.
func table(mode colorblind.Mode) []row {
	frame := types.NewFrame(len(reference), 1)
	for i, s := range reference {
		frame.Set(i, 0, s.rgb)
	}
	sim, corrected := colorblind.ApplyBoth(frame, colorblind.Settings{Mode: mode, Correction: true})

	rows := make([]row, len(reference))
	for i, s := range reference {
		rows[i] = row{
			name:      s.name,
			original:  s.rgb,
			simulated: sim.At(i, 0),
			corrected: corrected.At(i, 0),
		}
	}
	return rows
}

func render(w io.Writer, out *termenv.Output, mode colorblind.Mode, rows []row) {
	fmt.Fprintln(w, out.String(mode.Label()).Bold())
	fmt.Fprintf(w, "  %-8s  %-18s  %-18s  %-18s\n", "color", "original", "simulated", "corrected")
	for _, r := range rows {
		fmt.Fprintf(w, "  %-8s  %s  %s  %s\n", r.name, cell(out, r.original), cell(out, r.simulated), cell(out, r.corrected))
	}
	fmt.Fprintln(w)
}

func cell(out *termenv.Output, rgb [3]uint8) string {
	hex := fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])
	block := out.String("    ").Background(out.Color(hex)).String()
	return fmt.Sprintf("%s %-13s", block, fmt.Sprintf("%3d,%3d,%3d", rgb[0], rgb[1], rgb[2]))
}
