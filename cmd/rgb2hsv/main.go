// Command rgb2hsv converts an RGB color picked from a photo of the cloak into
// OpenCV HSV and prints a threshold block for the gocloak config file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/GoCloak/internal/config"
	"github.com/cjeanneret/GoCloak/internal/logic/mask"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("rgb2hsv: %v", err)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("rgb2hsv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dh := fs.Int("dh", 10, "hue tolerance (0-180)")
	ds := fs.Int("ds", 40, "saturation tolerance (0-255)")
	dv := fs.Int("dv", 40, "value tolerance (0-255)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: rgb2hsv [-dh N] [-ds N] [-dv N] R G B")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		fs.Usage()
		return fmt.Errorf("expected 3 color components, got %d", fs.NArg())
	}
	if *dh < 0 || *dh > mask.MaxHue || *ds < 0 || *ds > mask.MaxSaturation || *dv < 0 || *dv > mask.MaxValue {
		return fmt.Errorf("tolerances out of range: dh=%d ds=%d dv=%d", *dh, *ds, *dv)
	}

	var rgb [3]uint8
	for i, name := range []string{"R", "G", "B"} {
		v, err := strconv.ParseUint(fs.Arg(i), 10, 8)
		if err != nil {
			return fmt.Errorf("%s must be an integer between 0 and 255, got %q", name, fs.Arg(i))
		}
		rgb[i] = uint8(v)
	}

	hsv, err := mask.RGBToHSV(rgb[0], rgb[1], rgb[2])
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "RGB %d,%d,%d -> HSV %s\n\n", rgb[0], rgb[1], rgb[2], hsv)
	return writeThreshold(stdout, mask.Window(hsv, *dh, *ds, *dv))
}

// writeThreshold prints t in the config file layout.
func writeThreshold(w io.Writer, t mask.Threshold) error {
	block := struct {
		Cloak config.CloakConfig `yaml:"cloak"`
	}{
		Cloak: config.CloakConfig{
			Lower: config.HSVConfig{H: t.Lower.H, S: t.Lower.S, V: t.Lower.V},
			Upper: config.HSVConfig{H: t.Upper.H, S: t.Upper.S, V: t.Upper.V},
		},
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(block); err != nil {
		return fmt.Errorf("encode threshold: %w", err)
	}
	return enc.Close()
}
