// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command vexctl is the read-only inspection CLI: chain verification,
// Merkle inclusion proofs, and anchor-file tailing. It never mutates the
// ledger.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vexlabs/vex/internal/anchor"
	"github.com/vexlabs/vex/internal/audit"
	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/merkle"
	"github.com/vexlabs/vex/internal/storage"
)

var (
	flagDBPath string
	flagTenant string
)

func main() {
	root := &cobra.Command{
		Use:          "vexctl",
		Short:        "Inspect the VEX audit ledger and anchor receipts",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagDBPath, "db", "./vex-data", "BadgerDB directory")
	root.PersistentFlags().StringVar(&flagTenant, "tenant", "default", "tenant id")

	root.AddCommand(verifyChainCmd(), merkleProofCmd(), anchorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openLedger() (*audit.Ledger, func(), error) {
	cfg := storage.DefaultConfig()
	cfg.Path = flagDBPath
	cfg.GCInterval = 0
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	ledger := audit.New(db, clock.New(), nil, nil)
	return ledger, func() { _ = db.Close() }, nil
}

func verifyChainCmd() *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "verify-chain",
		Short: "Replay the tenant's audit chain and report the first break",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, closeDB, err := openLedger()
			if err != nil {
				return err
			}
			defer closeDB()

			report, err := ledger.VerifyChain(context.Background(), flagTenant, entity)
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(report, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if !report.OK {
				return fmt.Errorf("chain broken at event %s", report.FirstBrokenID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "restrict verification to one entity's chain")
	return cmd
}

func merkleProofCmd() *cobra.Command {
	var eventID string
	cmd := &cobra.Command{
		Use:   "merkle-proof",
		Short: "Build and check the inclusion proof for one audit event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if eventID == "" {
				return fmt.Errorf("--event is required")
			}
			ledger, closeDB, err := openLedger()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := context.Background()
			proof, root, err := ledger.Proof(ctx, flagTenant, eventID)
			if err != nil {
				return err
			}
			event, err := ledger.Get(ctx, flagTenant, eventID)
			if err != nil {
				return err
			}

			siblings := make([]string, len(proof.Siblings))
			for i, s := range proof.Siblings {
				siblings[i] = s.Hex()
			}
			out, _ := json.MarshalIndent(map[string]any{
				"event_id": eventID,
				"index":    proof.Index,
				"root":     root.Hex(),
				"siblings": siblings,
				"verified": merkle.VerifyLeafHash(event.CurrentHash, proof, root),
			}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&eventID, "event", "", "audit event id")
	return cmd
}

func anchorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anchor",
		Short: "Inspect anchor receipts",
	}

	var file string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent receipt in a JSON-Lines anchor file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := anchor.NewFileBackend(file, ".", clock.New())
			if err != nil {
				return err
			}
			receipt, err := backend.TailLast()
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(receipt, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	tail.Flags().StringVar(&file, "file", "anchors.jsonl", "anchor file path")
	cmd.AddCommand(tail)
	return cmd
}
