package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msgtools/msgkit/cfb"
	"github.com/msgtools/msgkit/internal/mmfile"
	"github.com/msgtools/msgkit/msg"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Validate a .msg file and report basic metadata",
		Long: `The info command validates a .msg file and displays basic metadata:
container geometry, message class, subject, and the recipient and
attachment counts.

Example:
  msgdump info mail.msg
  msgdump info mail.msg --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args)
		},
	}
}

type fileInfo struct {
	File        string `json:"file"`
	Size        int    `json:"size"`
	SectorSize  int    `json:"sectorSize"`
	Entries     int    `json:"entries"`
	Class       string `json:"class"`
	Subject     string `json:"subject"`
	Recipients  int    `json:"recipients"`
	Attachments int    `json:"attachments"`
	Warnings    int    `json:"warnings"`
}

func runInfo(args []string) error {
	path := args[0]
	printVerbose("Opening message: %s\n", path)

	data, cleanup, err := mmfile.Map(path)
	if err != nil {
		return fmt.Errorf("failed to open message: %w", err)
	}
	defer cleanup()

	r, err := cfb.New(data)
	if err != nil {
		return fmt.Errorf("failed to parse container: %w", err)
	}
	m, err := msg.DecodeReader(r, nil)
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}

	info := fileInfo{
		File:        path,
		Size:        len(data),
		SectorSize:  r.SectorSize(),
		Entries:     r.EntryCount(),
		Class:       m.Class(),
		Subject:     m.Subject(),
		Recipients:  len(m.Recipients),
		Attachments: len(m.Attachments),
		Warnings:    len(m.Warnings),
	}
	if jsonOut {
		return printJSON(info)
	}

	printInfo("\nMessage Information:\n")
	printInfo("  File: %s\n", info.File)
	printInfo("  Size: %d bytes\n", info.Size)
	printInfo("  Sector size: %d\n", info.SectorSize)
	printInfo("  Directory entries: %d\n", info.Entries)
	printInfo("  Class: %s\n", info.Class)
	printInfo("  Subject: %s\n", info.Subject)
	printInfo("  Recipients: %d\n", info.Recipients)
	printInfo("  Attachments: %d\n", info.Attachments)
	for _, w := range m.Warnings {
		printInfo("  Warning: %s\n", w)
	}
	return nil
}
