package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	ocidigest "github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"

	"github.com/radkum/redr/scanner"
	"github.com/radkum/redr/sigstore"
)

var evaluateBundle string

func init() {
	EvaluateCmd.Flags().StringVarP(&evaluateBundle, "set", "s", "", "compiled .sset bundle to evaluate against (required)")
	_ = EvaluateCmd.MarkFlagRequired("set")
}

// EvaluateCmd evaluates a file, or every file under a directory, against a
// compiled bundle, recursing into archives the same way the live detection
// path does.
var EvaluateCmd = &cobra.Command{
	Use:   "evaluate <path>",
	Short: "evaluate a file or directory against a compiled bundle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		root := args[0]

		bundleFile, err := os.Open(evaluateBundle)
		if err != nil {
			fatalf("evaluate: %v", err)
		}
		store, err := sigstore.LoadFromBundle(bundleFile)
		bundleFile.Close()
		if err != nil {
			fatalf("evaluate: %v", err)
		}

		ctx := context.Background()
		sc := scanner.New(store)
		runErr := make(chan error, 1)
		go func() { runErr <- sc.Run(ctx) }()

		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			return evaluateOne(ctx, sc, path)
		})
		if walkErr != nil {
			fatalf("evaluate: %v", walkErr)
		}

		report, err := sc.Close(ctx)
		if err != nil {
			fatalf("evaluate: %v", err)
		}
		if err := <-runErr; err != nil {
			fatalf("evaluate: %v", err)
		}

		fmt.Printf("scanned %d files: %d clean, %d malicious\n",
			len(report.Clean)+len(report.Malicious), len(report.Clean), len(report.Malicious))
		if len(report.Malicious) > 0 {
			os.Exit(1)
		}
	},
}

func evaluateOne(ctx context.Context, sc *scanner.Scanner, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	// The scanner closes f once the submission is processed.
	result, err := sc.FileSubmit(ctx, path, f, info.Size())
	if err != nil {
		return err
	}

	v, ok := <-result
	if !ok {
		return nil
	}
	if !v.Malicious {
		fmt.Printf("%s %s: clean\n", fileDigest(path), path)
		return nil
	}
	if v.Member != "" {
		fmt.Printf("%s %s: malicious member %s (%s: %s)\n", fileDigest(path), path, v.Member, v.Rule.Name, v.Rule.Description)
		return nil
	}
	fmt.Printf("%s %s: malicious (%s: %s)\n", fileDigest(path), path, v.Rule.Name, v.Rule.Description)
	return nil
}

// fileDigest reports the file's content hash in the conventional
// "sha256:<hex>" form, or a placeholder when the file can't be re-read.
func fileDigest(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "sha256:unknown"
	}
	defer f.Close()
	sum, err := ocidigest.SHA256.FromReader(f)
	if err != nil {
		return "sha256:unknown"
	}
	return sum.String()
}
