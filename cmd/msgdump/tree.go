package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msgtools/msgkit/cfb"
	"github.com/msgtools/msgkit/internal/mmfile"
)

var treeDepth int

func init() {
	cmd := newTreeCmd()
	cmd.Flags().IntVar(&treeDepth, "depth", 0, "Maximum depth (0 = unlimited)")
	rootCmd.AddCommand(cmd)
}

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <file>",
		Short: "Display the container's storage tree",
		Long: `The tree command displays the raw compound-file hierarchy of
storages and streams, before any property decoding.

Example:
  msgdump tree mail.msg
  msgdump tree mail.msg --depth 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTree(args)
		},
	}
}

func runTree(args []string) error {
	data, cleanup, err := mmfile.Map(args[0])
	if err != nil {
		return fmt.Errorf("failed to open message: %w", err)
	}
	defer cleanup()

	r, err := cfb.New(data)
	if err != nil {
		return fmt.Errorf("failed to parse container: %w", err)
	}

	printFolder(r.RootFolder(), "", 0)
	return nil
}

func printFolder(f *cfb.Folder, indent string, depth int) {
	if depth == 0 {
		printInfo("%s\n", f.Name())
	}
	if treeDepth > 0 && depth >= treeDepth {
		return
	}
	for _, sub := range f.SubFolders() {
		printInfo("%s+ %s\n", indent+"  ", sub.Name())
		printFolder(sub, indent+"  ", depth+1)
	}
	for _, ref := range f.Streams() {
		printInfo("%s- %s (%d bytes)\n", indent+"  ", ref.Name(), ref.Size())
	}
}
