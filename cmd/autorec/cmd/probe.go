package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autorec/autorec/internal/capture"
	"github.com/autorec/autorec/internal/device"
	"github.com/autorec/autorec/internal/encoder"
)

var probeOutput string

// probeCmd inspects the hardware without recording anything.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe capture hardware and the encoder",
	Long: `Probe discovers the camera and microphone, enumerates the camera's
capture formats, negotiates what a recording would use, and checks the
encoder binary. Nothing is recorded; the daemon does not need to run.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringVar(&probeOutput, "output", "table", "output format (table, yaml)")
}

type probeEncoder struct {
	Binary     string `yaml:"binary,omitempty"`
	Version    string `yaml:"version,omitempty"`
	VideoCodec string `yaml:"video_codec,omitempty"`
	Error      string `yaml:"error,omitempty"`
}

type probeVideo struct {
	Path       string   `yaml:"path,omitempty"`
	Connected  bool     `yaml:"connected"`
	Formats    []string `yaml:"formats,omitempty"`
	Negotiated string   `yaml:"negotiated,omitempty"`
	Error      string   `yaml:"error,omitempty"`
}

type probeAudio struct {
	Path       string `yaml:"path,omitempty"`
	Connected  bool   `yaml:"connected"`
	Negotiated string `yaml:"negotiated,omitempty"`
	Error      string `yaml:"error,omitempty"`
}

type probeReport struct {
	Encoder probeEncoder `yaml:"encoder"`
	Video   probeVideo   `yaml:"video"`
	Audio   probeAudio   `yaml:"audio"`
}

func runProbe(cmd *cobra.Command, _ []string) error {
	if probeOutput != "table" && probeOutput != "yaml" {
		return fmt.Errorf("unknown output format %q", probeOutput)
	}

	ctx := context.Background()
	logger := slog.Default()
	report := probeReport{
		Encoder: probeEncoderInfo(ctx, logger),
		Video:   probeVideoDevice(ctx, logger),
		Audio:   probeAudioDevice(logger),
	}

	if probeOutput == "yaml" {
		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}
	printReport(report)
	return nil
}

func probeEncoderInfo(ctx context.Context, logger *slog.Logger) probeEncoder {
	info, err := encoder.NewDetector(logger).Detect(ctx, cfg.Encoder.Binary)
	if err != nil {
		return probeEncoder{Error: err.Error()}
	}
	out := probeEncoder{Binary: info.Path, Version: info.Version}
	codec, err := info.SelectVideoCodec(cfg.Recording.VideoCodecs)
	if err != nil {
		out.Error = err.Error()
	} else {
		out.VideoCodec = codec
	}
	return out
}

func probeVideoDevice(ctx context.Context, logger *slog.Logger) probeVideo {
	path, found, err := device.NewSysfsDiscoverer().Discover(ctx, device.KindVideo)
	if err != nil || !found {
		out := probeVideo{Connected: false}
		if err != nil {
			out.Error = err.Error()
		}
		return out
	}

	out := probeVideo{Path: path, Connected: true}
	dev, err := capture.OpenVideoDevice(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer dev.Close()

	negotiator := capture.NewVideoNegotiator(logger)
	ranked := capture.Rank(negotiator.Enumerate(ctx, dev))
	for _, f := range ranked {
		out.Formats = append(out.Formats, f.String())
	}

	negotiated, err := negotiator.Apply(dev, ranked)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Negotiated = negotiated.String()
	return out
}

func probeAudioDevice(logger *slog.Logger) probeAudio {
	path, found, err := device.NewSysfsDiscoverer().Discover(context.Background(), device.KindAudio)
	if err != nil || !found {
		out := probeAudio{Connected: false}
		if err != nil {
			out.Error = err.Error()
		}
		return out
	}

	out := probeAudio{Path: path, Connected: true}
	dev, err := capture.OpenAudioDevice(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer dev.Close()

	format, err := capture.NewAudioNegotiator(logger).Negotiate(dev)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Negotiated = format.String()
	return out
}

func printReport(r probeReport) {
	fmt.Println("encoder:")
	if r.Encoder.Binary != "" {
		fmt.Printf("  binary:      %s\n", r.Encoder.Binary)
		fmt.Printf("  version:     %s\n", r.Encoder.Version)
	}
	if r.Encoder.VideoCodec != "" {
		fmt.Printf("  video codec: %s\n", r.Encoder.VideoCodec)
	}
	if r.Encoder.Error != "" {
		fmt.Printf("  error:       %s\n", r.Encoder.Error)
	}

	fmt.Println("video:")
	printDevice(r.Video.Path, r.Video.Connected, r.Video.Negotiated, r.Video.Error)
	if len(r.Video.Formats) > 0 {
		fmt.Println("  formats:")
		for _, f := range r.Video.Formats {
			fmt.Printf("    %s\n", f)
		}
	}

	fmt.Println("audio:")
	printDevice(r.Audio.Path, r.Audio.Connected, r.Audio.Negotiated, r.Audio.Error)
}

func printDevice(path string, connected bool, negotiated, errMsg string) {
	if !connected {
		fmt.Println("  not connected")
	}
	if path != "" {
		fmt.Printf("  device:      %s\n", path)
	}
	if negotiated != "" {
		fmt.Printf("  negotiated:  %s\n", negotiated)
	}
	if errMsg != "" {
		fmt.Printf("  error:       %s\n", errMsg)
	}
}
