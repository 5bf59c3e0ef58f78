// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"

	"github.com/sage-x-project/kbs/store"
	"github.com/spf13/cobra"
)

var keysetCmd = &cobra.Command{
	Use:   "keyset",
	Short: "Manage keyset records",
}

var (
	keysetPutID        string
	keysetPutPolID     string
	keysetPutSecretIDs []string
)

var keysetPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or update a keyset",
	RunE:  runKeysetPut,
}

var keysetGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a keyset record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysetGet,
}

func init() {
	rootCmd.AddCommand(keysetCmd)
	keysetCmd.AddCommand(keysetPutCmd)
	keysetCmd.AddCommand(keysetGetCmd)

	keysetPutCmd.Flags().StringVar(&keysetPutID, "id", "", "keyset id (required)")
	keysetPutCmd.Flags().StringVar(&keysetPutPolID, "policy", "", "policy id governing this keyset (required)")
	keysetPutCmd.Flags().StringSliceVar(&keysetPutSecretIDs, "secret", nil, "member secret id, in order (repeatable, at least one required)")
	_ = keysetPutCmd.MarkFlagRequired("id")
	_ = keysetPutCmd.MarkFlagRequired("policy")
	_ = keysetPutCmd.MarkFlagRequired("secret")
}

func runKeysetPut(cmd *cobra.Command, args []string) error {
	ks := &store.Keyset{ID: keysetPutID, SecretIDs: keysetPutSecretIDs, PolID: keysetPutPolID}
	return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
		if err := st.PutKeyset(ctx, ks); err != nil {
			return fmt.Errorf("failed to put keyset: %w", err)
		}
		fmt.Printf("keyset %q provisioned (%d members)\n", ks.ID, len(ks.SecretIDs))
		return nil
	})
}

func runKeysetGet(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
		ks, err := st.GetKeyset(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(ks)
	})
}
