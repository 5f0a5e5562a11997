// Command docflow runs documentation requests and workflows through the orchestrator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"docflow/pkg/config"
	"docflow/pkg/metrics"
	"docflow/pkg/orchestrator"
	"docflow/pkg/version"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes one subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "run":
		err = runRequest(ctx, args[1:], stdout)
	case "workflow":
		err = runWorkflow(ctx, args[1:], stdout)
	case "status":
		err = runStatus(ctx, args[1:], stdout)
	case "clear-cache":
		err = runClearCache(ctx, args[1:], stdout)
	case "secrets":
		err = runSecrets(args[1:], stdout)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Error: unknown command '%s'\n\n", args[0])
		printUsage(stderr)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "docflow - documentation workflow orchestrator\n\n")
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  docflow run <query|draft|review|update> --input <file> [--config <file>] [--output <file>]\n")
	fmt.Fprintf(w, "  docflow workflow <new_content|update|review> --input <file> [--jira IDS] [--confluence IDS] [--sources <file>]\n")
	fmt.Fprintf(w, "  docflow status [--workflow <id>] [--metrics] [--config <file>]\n")
	fmt.Fprintf(w, "  docflow clear-cache [--pattern <glob>] [--config <file>]   (error records, metrics and sessions are kept)\n")
	fmt.Fprintf(w, "  docflow secrets --in <plain.json> --out <file>   (passphrase from %s)\n", config.EnvSecretsPassword)
	fmt.Fprintf(w, "  docflow version\n\n")
	fmt.Fprintf(w, "Examples:\n")
	fmt.Fprintf(w, "  docflow run review --input page.json\n")
	fmt.Fprintf(w, "  docflow workflow new_content --input topic.json --jira DOC-1,DOC-2 --sources context.json\n")
	fmt.Fprintf(w, "  docflow clear-cache --pattern 'review:*'\n")
}

// common flags shared by every subcommand.
type common struct {
	configPath string
	sources    string
	output     string
}

func newFlagSet(name string, c *common) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&c.configPath, "config", "", "Config file (JSON or YAML; default: built-in defaults)")
	fs.StringVar(&c.sources, "sources", "", "JSON file with context records keyed by source and id")
	fs.StringVar(&c.output, "output", "", "Write the JSON result to this file instead of stdout")
	return fs
}

// parse splits "<positional> --flags..." and parses the flags.
func parse(fs *flag.FlagSet, args []string, positional bool) (string, error) {
	var name string
	if positional {
		if len(args) == 0 || strings.HasPrefix(args[0], "-") {
			return "", fmt.Errorf("%s: missing type argument", fs.Name())
		}
		name, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", err //nolint:wrapcheck // flag errors are already descriptive
	}
	return name, nil
}

func open(ctx context.Context, c common) (*app, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err //nolint:wrapcheck // config errors are already descriptive
	}
	a, err := newApp(ctx, cfg, c.sources)
	if err != nil {
		return nil, err
	}
	a.serveMetrics()
	return a, nil
}

func runRequest(ctx context.Context, args []string, stdout io.Writer) error {
	var c common
	var input string
	fs := newFlagSet("run", &c)
	fs.StringVar(&input, "input", "", "JSON request body")
	kind, err := parse(fs, args, true)
	if err != nil {
		return err
	}

	body, err := readJSON(input)
	if err != nil {
		return err
	}

	a, err := open(ctx, c)
	if err != nil {
		return err
	}
	defer closeApp(a)

	result, err := a.orch.Handle(ctx, kind, body)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", kind, err)
	}
	return emit(stdout, c.output, result)
}

func runWorkflow(ctx context.Context, args []string, stdout io.Writer) error {
	var c common
	var input, jira, confluence, extra string
	fs := newFlagSet("workflow", &c)
	fs.StringVar(&input, "input", "", "JSON content for the workflow (topic, content, updates)")
	fs.StringVar(&jira, "jira", "", "Comma-separated issue ids to retrieve")
	fs.StringVar(&confluence, "confluence", "", "Comma-separated wiki page ids to retrieve")
	fs.StringVar(&extra, "context", "", "JSON file with extra context passed to the step")
	workflowType, err := parse(fs, args, true)
	if err != nil {
		return err
	}

	content, err := readJSON(input)
	if err != nil {
		return err
	}
	refs := orchestrator.Refs{JiraIDs: splitIDs(jira), ConfluenceIDs: splitIDs(confluence)}
	if extra != "" {
		if refs.Context, err = readJSON(extra); err != nil {
			return err
		}
	}

	a, err := open(ctx, c)
	if err != nil {
		return err
	}
	defer closeApp(a)

	result, err := a.orch.RunWorkflow(ctx, workflowType, content, refs)
	if err != nil {
		return fmt.Errorf("%s workflow failed: %w", workflowType, err)
	}
	return emit(stdout, c.output, result)
}

func runStatus(ctx context.Context, args []string, stdout io.Writer) error {
	var c common
	var workflowID string
	var withMetrics bool
	fs := newFlagSet("status", &c)
	fs.StringVar(&workflowID, "workflow", "", "Show a stored workflow result instead of system status")
	fs.BoolVar(&withMetrics, "metrics", false, "Print the Prometheus registry in text format")
	if _, err := parse(fs, args, false); err != nil {
		return err
	}

	a, err := open(ctx, c)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if withMetrics {
		return metrics.WriteText(stdout, a.registry) //nolint:wrapcheck // already wrapped
	}
	if workflowID != "" {
		state, err := a.orch.WorkflowStatus(ctx, workflowID)
		if err != nil {
			return err //nolint:wrapcheck // sentinel carries the id
		}
		return emit(stdout, c.output, state)
	}
	return emit(stdout, c.output, a.orch.Status(ctx))
}

func runClearCache(ctx context.Context, args []string, stdout io.Writer) error {
	var c common
	var pattern string
	fs := newFlagSet("clear-cache", &c)
	fs.StringVar(&pattern, "pattern", "*", "Glob of keys to remove, e.g. 'review:*'")
	if _, err := parse(fs, args, false); err != nil {
		return err
	}

	a, err := open(ctx, c)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if !a.orch.ClearCache(ctx, pattern) {
		return fmt.Errorf("failed to clear cache keys matching %s", pattern)
	}
	fmt.Fprintf(stdout, "Cleared cache keys matching %s\n", pattern)
	return nil
}

// runSecrets encrypts a flat JSON object of secrets for use as secrets_file.
func runSecrets(args []string, stdout io.Writer) error {
	var in, out string
	fs := flag.NewFlagSet("secrets", flag.ContinueOnError)
	fs.StringVar(&in, "in", "", "Plain JSON object of secret names to values")
	fs.StringVar(&out, "out", "", "Encrypted output file")
	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // flag errors are already descriptive
	}
	if in == "" || out == "" {
		return fmt.Errorf("secrets: --in and --out are required")
	}

	password := os.Getenv(config.EnvSecretsPassword)
	if password == "" {
		return fmt.Errorf("secrets: %s is not set", config.EnvSecretsPassword)
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", in, err)
	}
	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("failed to parse %s: %w", in, err)
	}
	if err := config.EncryptSecretsFile(out, password, secrets); err != nil {
		return err //nolint:wrapcheck // already wrapped
	}
	fmt.Fprintf(stdout, "Encrypted %d secrets to %s\n", len(secrets), out)
	return nil
}

func closeApp(a *app) {
	if err := a.Close(); err != nil {
		a.logger.Warn("Shutdown: %v", err)
	}
}

func readJSON(path string) (map[string]any, error) {
	if path == "" {
		return nil, fmt.Errorf("input file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return body, nil
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// emit writes v as JSON to path, or to stdout. Output is indented when stdout is a terminal.
func emit(stdout io.Writer, path string, v any) error {
	if path != "" {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result to JSON: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // result files are not secret
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(stdout, "Result written to %s\n", path)
		return nil
	}
	return writeJSON(stdout, v, isTerminal(stdout))
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal result to JSON: %w", err)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}
