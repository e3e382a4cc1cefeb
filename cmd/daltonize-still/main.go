package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anthonynsimon/bild/imgio"

	"daltonize-go/internal/colorblind"
	"daltonize-go/internal/types"
)

func main() {
	var (
		path       = flag.String("path", "", "Image file or directory of images")
		modeName   = flag.String("mode", "all", "Mode to apply, or all")
		correction = flag.Bool("correction", true, "Write corrected images")
		simulated  = flag.Bool("simulated", true, "Write simulated images")
		outDir     = flag.String("out", "", "Output directory (default: next to each input)")
		quality    = flag.Int("quality", 90, "JPEG quality")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("missing -path")
	}

	modes, err := selectModes(*modeName)
	if err != nil {
		log.Fatal(err)
	}

	files, err := listFiles(*path)
	if err != nil {
		log.Fatalf("list files: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no images found in %s", *path)
	}
	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			log.Fatalf("create output dir: %v", err)
		}
	}

	t := colorblind.Parallel()
	var written int
	for _, file := range files {
		img, err := imgio.Open(file)
		if err != nil {
			log.Printf("open %s: %v", file, err)
			continue
		}
		frame := types.FrameFromImage(img)

		for _, mode := range modes {
			sim, corrected := t.ApplyBoth(frame, colorblind.Settings{Mode: mode, Correction: true})
			outputs := map[string]types.Frame{}
			if *simulated {
				outputs["simulated"] = sim
			}
			if *correction {
				outputs["corrected"] = corrected
			}
			for kind, out := range outputs {
				dst := outputName(file, *outDir, mode, kind)
				if err := save(dst, out, *quality); err != nil {
					log.Printf("save %s: %v", dst, err)
					continue
				}
				written++
				fmt.Println(dst)
			}
		}
	}
	fmt.Printf("summary: inputs=%d written=%d\n", len(files), written)
}

func selectModes(name string) ([]colorblind.Mode, error) {
	if strings.EqualFold(name, "all") {
		return colorblind.Modes()[1:], nil
	}
	mode, err := colorblind.ParseMode(name)
	if err != nil {
		return nil, err
	}
	if mode == colorblind.None {
		return nil, fmt.Errorf("mode none produces no output")
	}
	return []colorblind.Mode{mode}, nil
}

// outputName places <base>_<mode>_<kind><ext> in outDir, or next to the
// input when outDir is empty.
func outputName(input, outDir string, mode colorblind.Mode, kind string) string {
	dir := filepath.Dir(input)
	if outDir != "" {
		dir = outDir
	}
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(filepath.Base(input), ext)
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s%s", base, mode, kind, strings.ToLower(ext)))
}

func save(path string, frame types.Frame, quality int) error {
	img, err := frame.RGBA()
	if err != nil {
		return err
	}
	encoder := imgio.JPEGEncoder(quality)
	if strings.EqualFold(filepath.Ext(path), ".png") {
		encoder = imgio.PNGEncoder()
	}
	return imgio.Save(path, img, encoder)
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// outputKinds are the suffixes outputName appends.
var outputKinds = []string{"simulated", "corrected"}

// isOutput reports whether name looks like a file written by outputName.
func isOutput(name string) bool {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for _, mode := range colorblind.Modes()[1:] {
		for _, kind := range outputKinds {
			if strings.HasSuffix(base, "_"+mode.String()+"_"+kind) {
				return true
			}
		}
	}
	return false
}

// listFiles returns path itself, or the images in directory path except
// earlier outputs of this tool.
func listFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isImage(entry.Name()) && !isOutput(entry.Name()) {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
