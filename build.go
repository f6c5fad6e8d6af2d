//go:build ignore

// build.go - tschart build script
// Usage: go run build.go [-target=TARGET] [-v]
// Targets: all, test, clean, release

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	version = "1.0.0"
	binary  = "tschart"
)

var (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
)

// BuildContext holds configuration for one build invocation
type BuildContext struct {
	Verbose bool
	DistDir string
	GOOS    string
	GOARCH  string
}

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	distDir := flag.String("dist", "dist", "Output directory for binaries")
	flag.Parse()

	fmt.Println(colorCyan + "=== tschart build ===" + colorReset)

	ctx := &BuildContext{
		Verbose: *verbose,
		DistDir: *distDir,
		GOOS:    runtime.GOOS,
		GOARCH:  runtime.GOARCH,
	}

	startTime := time.Now()
	var err error
	switch *target {
	case "all":
		err = buildBinary(ctx)
	case "test":
		err = runTests(ctx)
	case "clean":
		err = clean(ctx)
	case "release":
		err = buildRelease(ctx)
	default:
		showHelp()
		os.Exit(1)
	}
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Done in %s", time.Since(startTime).Round(time.Millisecond)))
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

func binaryName(ctx *BuildContext) string {
	if ctx.GOOS == "windows" {
		return binary + ".exe"
	}
	return binary
}

// buildBinary compiles cmd/tschart into the dist directory, stamping the
// version and build time
func buildBinary(ctx *BuildContext) error {
	outputPath := filepath.Join(ctx.DistDir, binaryName(ctx))
	printInfo(fmt.Sprintf("Building %s for %s/%s...", outputPath, ctx.GOOS, ctx.GOARCH))

	ldflags := fmt.Sprintf("-s -w -X main.Version=%s -X main.BuildTime=%s",
		version, time.Now().UTC().Format(time.RFC3339))

	args := []string{"build"}
	if ctx.Verbose {
		args = append(args, "-v")
	}
	args = append(args, "-ldflags", ldflags, "-o", outputPath, "./cmd/tschart")

	if err := goCommand(ctx, args...); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	if info, err := os.Stat(outputPath); err == nil {
		printSuccess(fmt.Sprintf("Built %s (%.1f MB)", outputPath, float64(info.Size())/1024/1024))
	}
	return nil
}

func runTests(ctx *BuildContext) error {
	printInfo("Running Go tests...")
	args := []string{"test", "-race"}
	if ctx.Verbose {
		args = append(args, "-v")
	}
	args = append(args, "./...")
	if err := goCommand(ctx, args...); err != nil {
		return fmt.Errorf("tests failed: %w", err)
	}
	printSuccess("All tests passed")
	return nil
}

func clean(ctx *BuildContext) error {
	printInfo("Cleaning build artifacts...")
	for _, dir := range []string{ctx.DistDir, "output", "logs"} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}
	return nil
}

// buildRelease builds static binaries for the release platforms
func buildRelease(ctx *BuildContext) error {
	if err := clean(ctx); err != nil {
		return err
	}
	platforms := []string{"linux/amd64", "linux/arm64", "darwin/arm64", "windows/amd64"}
	for _, p := range platforms {
		goos, goarch, _ := strings.Cut(p, "/")
		release := &BuildContext{
			Verbose: ctx.Verbose,
			DistDir: filepath.Join(ctx.DistDir, goos+"_"+goarch),
			GOOS:    goos,
			GOARCH:  goarch,
		}
		if err := buildBinary(release); err != nil {
			return err
		}
	}

	content := fmt.Sprintf("tschart v%s\nBuilt: %s\n", version, time.Now().Format("2006-01-02 15:04:05"))
	return os.WriteFile(filepath.Join(ctx.DistDir, "VERSION.txt"), []byte(content), 0644)
}

func goCommand(ctx *BuildContext, args ...string) error {
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0", "GOOS="+ctx.GOOS, "GOARCH="+ctx.GOARCH)
	if ctx.Verbose {
		fmt.Printf("go %s\n", strings.Join(args, " "))
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func showHelp() {
	fmt.Println("Usage: go run build.go [-target=TARGET] [-v] [-dist=DIR]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  all       Build tschart for the host platform (default)")
	fmt.Println("  test      Run all tests with the race detector")
	fmt.Println("  clean     Remove dist, output and logs")
	fmt.Println("  release   Cross-compile release binaries")
}
