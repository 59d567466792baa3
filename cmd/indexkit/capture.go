package main

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/devblac/indexkit/internal/indexer"
	"github.com/devblac/indexkit/internal/storage"
)

var captureCmd = &cobra.Command{
	Use:   "capture <txhash>...",
	Short: "Fetch mined transactions and print their occurrences as replay envelopes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		chain, _ := cmd.Flags().GetString("chain")
		outPath, _ := cmd.Flags().GetString("out")

		ix, err := indexer.New(cmd.Context(), cfg, indexer.Options{DryRun: true, Logger: log})
		if err != nil {
			return err
		}
		defer ix.Close()

		var envs []any
		for _, arg := range args {
			hash, err := hexHash(arg)
			if err != nil {
				return err
			}
			got, err := ix.Capture(cmd.Context(), chain, hash)
			if err != nil {
				return fmt.Errorf("capture %s: %w", arg, err)
			}
			for _, env := range got {
				envs = append(envs, env)
			}
		}

		if outPath != "" {
			return storage.NewJSONLWriter(outPath).Append(envs...)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, env := range envs {
			if err := enc.Encode(env); err != nil {
				return err
			}
		}
		return nil
	},
}

func hexHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid transaction hash %q", s)
	}
	return common.BytesToHash(b), nil
}

func init() {
	captureCmd.Flags().String("chain", "", "Chain name the transactions were mined on")
	captureCmd.Flags().String("out", "", "Append envelopes to this JSONL file instead of stdout")
	_ = captureCmd.MarkFlagRequired("chain")
}
