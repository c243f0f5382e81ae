package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/msgtools/msgkit/internal/mmfile"
	"github.com/msgtools/msgkit/msg"
)

var fieldsRaw bool

func init() {
	cmd := newFieldsCmd()
	cmd.Flags().BoolVar(&fieldsRaw, "raw", false, "Also dump raw property tags and payload sizes")
	rootCmd.AddCommand(cmd)
}

func newFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields <file>",
		Short: "Dump the decoded property bags",
		Long: `The fields command decodes the message and prints every resolved
property of the message, its recipients, and its attachments.

Example:
  msgdump fields mail.msg
  msgdump fields mail.msg --json
  msgdump fields mail.msg --raw`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFields(args)
		},
	}
}

func runFields(args []string) error {
	data, cleanup, err := mmfile.Map(args[0])
	if err != nil {
		return fmt.Errorf("failed to open message: %w", err)
	}
	defer cleanup()

	var opts *msg.Options
	if fieldsRaw && !jsonOut {
		opts = &msg.Options{RawObserver: func(tag uint32, raw []byte) {
			printInfo("raw %08X  %d bytes\n", tag, len(raw))
		}}
	}

	m, err := msg.Decode(data, opts)
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}

	if jsonOut {
		return printJSON(fieldsDoc(m))
	}

	printInfo("\nMessage:\n")
	printProps(m.Props)
	for i, r := range m.Recipients {
		printInfo("\nRecipient #%d (%s):\n", i, r.Kind)
		printProps(r.Props)
	}
	for i, a := range m.Attachments {
		printInfo("\nAttachment #%d (%s):\n", i, a.Filename())
		printProps(a.Props)
		if a.Embedded != nil {
			printInfo("  [embedded message at entry %d]\n", a.Embedded.Index())
		}
	}
	for _, w := range m.Warnings {
		printInfo("\nWarning: %s\n", w)
	}
	return nil
}

func printProps(props map[string]any) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		printInfo("  %-32s %s\n", k, renderValue(props[k]))
	}
}

func renderValue(v any) string {
	switch t := v.(type) {
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(t))
	case time.Time:
		return t.Format(time.RFC3339)
	case string:
		if len(t) > 120 {
			return fmt.Sprintf("%.117s...", t)
		}
		return t
	default:
		return fmt.Sprintf("%v", v)
	}
}

// fieldsDoc flattens a message for JSON output; byte payloads are
// reduced to their sizes.
func fieldsDoc(m *msg.Message) map[string]any {
	doc := map[string]any{
		"props":    jsonProps(m.Props),
		"warnings": m.Warnings,
	}
	var recipients []map[string]any
	for _, r := range m.Recipients {
		recipients = append(recipients, map[string]any{
			"kind":  r.Kind,
			"props": jsonProps(r.Props),
		})
	}
	doc["recipients"] = recipients

	var attachments []map[string]any
	for _, a := range m.Attachments {
		attachments = append(attachments, map[string]any{
			"filename": a.Filename(),
			"embedded": a.Embedded != nil,
			"props":    jsonProps(a.Props),
		})
	}
	doc["attachments"] = attachments
	return doc
}

func jsonProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if b, ok := v.([]byte); ok {
			out[k] = fmt.Sprintf("<%d bytes>", len(b))
			continue
		}
		out[k] = v
	}
	return out
}
