package main

import (
	"fmt"
	"os"

	"github.com/debemdeboas/stand-admin/internal/config"
	"gopkg.in/yaml.v3"
)

const header = "# Stand Admin Configuration Example\n" +
	"# Copy this file to config.yaml and customize as needed.\n" +
	"# Secrets can also come from the environment: " +
	config.EnvS3AccessKeyID + ", " + config.EnvS3SecretAccessKey + ", " + config.EnvRevalidateSecret + "\n\n"

func render() ([]byte, error) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return append([]byte(header), yamlData...), nil
}

func main() {
	output, err := render()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating YAML: %v\n", err)
		os.Exit(1)
	}

	// Write to file or stdout
	outputFile := "config.example.yaml"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if outputFile == "-" {
		os.Stdout.Write(output)
		return
	}
	if err := os.WriteFile(outputFile, output, 0644); err != nil {
		fmt.Fprintf(os.Stderr, config.ErrWriteConfigContentFmt+"\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated example config: %s\n", outputFile)
}
