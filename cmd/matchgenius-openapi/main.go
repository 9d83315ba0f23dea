// Package main writes the OpenAPI document for the MatchGenius API.
// Routes are registered with stub handlers so no database, Stripe account,
// or storage bucket is needed.
//
// Usage:
//
//	go run ./cmd/matchgenius-openapi > openapi.json
//	go run ./cmd/matchgenius-openapi -yaml -output openapi.yaml
//	go run ./cmd/matchgenius-openapi -public > openapi.public.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/matchgenius-api/internal/http/routes"
	"github.com/jmylchreest/matchgenius-api/internal/version"
)

func main() {
	outputFile := flag.String("output", "", "Output file path (default: stdout)")
	outputYAML := flag.Bool("yaml", false, "Output as YAML instead of JSON")
	baseURL := flag.String("base-url", "https://api.matchgenius.app", "Base URL for the API server")
	public := flag.Bool("public", false, "Omit admin operations")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().Short())
		return
	}

	if err := generate(*outputFile, *baseURL, *outputYAML, *public); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func generate(outputFile, baseURL string, asYAML, public bool) error {
	api := humachi.New(chi.NewRouter(), routes.NewHumaConfig(baseURL))

	h := routes.StubHandlers()
	if public {
		h.Admin = nil
	}
	routes.Register(api, h)

	spec := api.OpenAPI()
	var (
		data []byte
		err  error
	)
	if asYAML {
		data, err = yaml.Marshal(spec)
	} else {
		data, err = json.MarshalIndent(spec, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshaling OpenAPI spec: %w", err)
	}

	if outputFile == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outputFile, err)
	}
	fmt.Fprintf(os.Stderr, "OpenAPI spec written to %s\n", outputFile)
	return nil
}
