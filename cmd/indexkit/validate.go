package main

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/devblac/indexkit/internal/client"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config, build the catalog and optionally ping RPC endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		project, log, err := compile(cmd)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d)\n", project.Config.Version)

		for _, src := range project.Sources.All() {
			fmt.Fprintf(out, "- %s %s on %d chain(s)\n", src.Kind, src.Name, len(src.Deployments))
			for _, w := range src.Descriptors.Warnings {
				fmt.Fprintf(out, "  skipped %s\n", w)
			}
		}
		fmt.Fprintf(out, "catalog: %d name(s)\n", project.Catalog.Len())

		ping, _ := cmd.Flags().GetBool("ping")
		if !ping {
			fmt.Fprintln(out, "validate: success")
			return nil
		}

		pool, err := client.NewPool(cmd.Context(), project.Config.Chains, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		failures := 0
		for _, name := range pool.Names() {
			r, err := pool.Chain(name)
			if err != nil {
				return err
			}
			var id hexutil.Big
			err = r.Request(cmd.Context(), &id, "eth_chainId")
			switch {
			case errors.Is(err, client.ErrNoEndpoint):
				fmt.Fprintf(out, "- chain %s: no rpc endpoint\n", name)
			case err != nil:
				failures++
				fmt.Fprintf(out, "- chain %s: ERROR %v\n", name, err)
			case (*big.Int)(&id).Uint64() != r.ChainID():
				failures++
				fmt.Fprintf(out, "- chain %s: ERROR rpc reports chain id %s, want %d\n", name, (*big.Int)(&id), r.ChainID())
			default:
				fmt.Fprintf(out, "- chain %s: chainId %d OK\n", name, r.ChainID())
			}
		}
		if failures > 0 {
			return fmt.Errorf("validate: %d chain(s) failed connectivity", failures)
		}

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}

func init() {
	validateCmd.Flags().Bool("ping", false, "Check every chain's rpc endpoint")
}
