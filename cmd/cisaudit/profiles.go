package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProfilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the AWS profiles defined in the shared config files",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.profiles()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(w, "No AWS profiles found.")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(w, name)
			}
			return nil
		},
	}
}
