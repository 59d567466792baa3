package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devblac/indexkit/internal/catalog"
	"github.com/devblac/indexkit/internal/resolver"
	"github.com/devblac/indexkit/internal/source"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print every event name handlers can subscribe to",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _, err := compile(cmd)
		if err != nil {
			return err
		}
		kind, _ := cmd.Flags().GetString("kind")
		asJSON, _ := cmd.Flags().GetBool("json")

		var entries []*catalog.Entry
		for _, e := range project.Catalog.Entries() {
			if kind == "" || e.Kind.String() == kind {
				entries = append(entries, e)
			}
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%-48s %s\n", e.Name, e.Kind)
		}
		return nil
	},
}

type contextView struct {
	Name      string                              `json:"name"`
	Source    string                              `json:"source,omitempty"`
	Chains    []source.Chain                      `json:"chains"`
	Chain     *source.Chain                       `json:"chain,omitempty"`
	Contracts map[string]resolver.ContractBinding `json:"contracts"`
}

var contextCmd = &cobra.Command{
	Use:   "context [name]",
	Short: "Print the handler context of a catalog name, or of every name when none is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _, err := compile(cmd)
		if err != nil {
			return err
		}
		name := "*"
		st := project.UnionContext()
		if len(args) == 1 {
			name = args[0]
			if st, err = project.Context(name); err != nil {
				return err
			}
		}

		view := contextView{Name: name, Source: st.Source, Chains: st.Chains, Contracts: st.Contracts}
		if ch, ok := st.Single(); ok {
			view.Chain = &ch
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	},
}

func init() {
	catalogCmd.Flags().String("kind", "", "Only names of this kind (setup, log, function_call, account_transfer, account_transaction, block_tick)")
	catalogCmd.Flags().Bool("json", false, "Print entries as JSON")
}
