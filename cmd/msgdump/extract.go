package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/msgtools/msgkit/internal/atomicfile"
	"github.com/msgtools/msgkit/internal/mmfile"
	"github.com/msgtools/msgkit/msg"
)

var extractDir string

func init() {
	cmd := newExtractCmd()
	cmd.Flags().StringVarP(&extractDir, "out", "o", ".", "Output directory")
	rootCmd.AddCommand(cmd)
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract attachments to files",
		Long: `The extract command writes every attachment payload to the output
directory. Embedded message attachments are re-serialized as standalone
.msg files.

Example:
  msgdump extract mail.msg
  msgdump extract mail.msg -o /tmp/attachments`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(args)
		},
	}
}

func runExtract(args []string) error {
	data, cleanup, err := mmfile.Map(args[0])
	if err != nil {
		return fmt.Errorf("failed to open message: %w", err)
	}
	defer cleanup()

	m, err := msg.Decode(data, nil)
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if len(m.Attachments) == 0 {
		printInfo("No attachments.\n")
		return nil
	}

	for i, a := range m.Attachments {
		name := a.Filename()
		payload := a.Data()

		if a.Embedded != nil {
			payload, err = a.Embedded.Bytes()
			if err != nil {
				return fmt.Errorf("attachment %d: re-serialize embedded message: %w", i, err)
			}
			if name == "" {
				name = fmt.Sprintf("embedded-%02d.msg", i)
			}
		}
		if name == "" {
			name = fmt.Sprintf("attachment-%02d.bin", i)
		}
		// Strip any path components an adversarial file might carry.
		name = filepath.Base(name)

		dest := filepath.Join(extractDir, name)
		if err := atomicfile.WriteFile(dest, payload, 0o644); err != nil {
			return fmt.Errorf("attachment %d: %w", i, err)
		}
		printInfo("Wrote %s (%d bytes)\n", dest, len(payload))
	}
	return nil
}
