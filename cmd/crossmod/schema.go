// SPDX-License-Identifier: MPL-2.0

package main

import (
	"github.com/crossmod/crossmod/pkg/descriptor"

	"github.com/spf13/cobra"
)

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of package descriptors (" + descriptor.FileName + ")",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := descriptor.Schema()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if _, err := w.Write(data); err != nil {
				return err
			}
			_, err = w.Write([]byte("\n"))
			return err
		},
	}
}
