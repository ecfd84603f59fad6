// Command ghibli generates one Studio Ghibli style image from a text prompt with
// the Stability AI SDXL endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"imagestudio/config"
	"imagestudio/logger"
	"imagestudio/studio"
)

func main() {
	promptText := flag.String("p", "", "Prompt describing the image")
	outputFile := flag.String("o", "ghibli.png", "Output file path (.png or .webp)")
	configFile := flag.String("config", "conf.json", "Configuration file")
	flag.Parse()

	if *promptText == "" && flag.NArg() > 0 {
		*promptText = strings.Join(flag.Args(), " ")
	}
	if *promptText == "" {
		fmt.Fprintln(os.Stderr, "Usage: ghibli -p \"a floating castle in the sky\" [-o out.png]")
		os.Exit(2)
	}

	cfg := config.Load(*configFile)
	opts := logger.FromConfig(cfg.Logging)
	opts.Pretty = true
	opts.Out = os.Stderr
	if err := logger.Init(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Only the file named by -o is written.
	cfg.Settings.SaveLocalCopy = false
	cfg.Settings.UploadToImageHost = false

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := studio.New(cfg, studio.Deps{}).GenerateGhibli(ctx, *promptText)
	if err != nil {
		log.Error().Err(err).Msg("generation failed")
		fmt.Fprintln(os.Stderr, studio.Status(err))
		os.Exit(1)
	}

	path, err := write(*outputFile, res.Image)
	if err != nil {
		log.Fatal().Err(err).Msg("could not save image")
	}
	fmt.Printf("%s Saved to %s\n", res.Status, path)
}

func write(path string, data []byte) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		dir, name := filepath.Split(path)
		if dir == "" {
			dir = "."
		}
		return studio.SaveWebP(dir, strings.TrimSuffix(name, filepath.Ext(name)), data)
	}
	return path, os.WriteFile(path, data, 0o644)
}
