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
	"encoding/hex"
	"fmt"
	"os"

	"github.com/sage-x-project/kbs/store"
	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage raw secret records",
}

var (
	secretPutID       string
	secretPutPolID    string
	secretPutValue    string
	secretPutValueHex string
	secretPutFile     string
)

var secretPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or update a raw secret",
	RunE:  runSecretPut,
}

var secretGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a secret's metadata as JSON (value redacted)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretGet,
}

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretPutCmd)
	secretCmd.AddCommand(secretGetCmd)

	secretPutCmd.Flags().StringVar(&secretPutID, "id", "", "secret id (required)")
	secretPutCmd.Flags().StringVar(&secretPutPolID, "policy", "", "policy id governing this secret (required)")
	secretPutCmd.Flags().StringVar(&secretPutValue, "value", "", "secret value as a UTF-8 string")
	secretPutCmd.Flags().StringVar(&secretPutValueHex, "value-hex", "", "secret value, hex-encoded")
	secretPutCmd.Flags().StringVar(&secretPutFile, "value-file", "", "read the secret value from a file")
	_ = secretPutCmd.MarkFlagRequired("id")
	_ = secretPutCmd.MarkFlagRequired("policy")
}

func runSecretPut(cmd *cobra.Command, args []string) error {
	value, err := resolveValue(secretPutValue, secretPutValueHex, secretPutFile)
	if err != nil {
		return err
	}

	sec := &store.Secret{ID: secretPutID, Value: value, PolID: secretPutPolID}
	return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
		if err := st.PutSecret(ctx, sec); err != nil {
			return fmt.Errorf("failed to put secret: %w", err)
		}
		fmt.Printf("secret %q provisioned (%d bytes)\n", sec.ID, len(sec.Value))
		return nil
	})
}

func runSecretGet(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
		sec, err := st.GetSecret(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(struct {
			ID        string `json:"id"`
			PolID     string `json:"pol_id"`
			ValueSize int    `json:"value_size"`
		}{sec.ID, sec.PolID, len(sec.Value)})
	})
}

// resolveValue picks exactly one of a literal string, hex, or file
// source for a secret value. Exactly one non-empty source is allowed.
func resolveValue(literal, hexVal, file string) ([]byte, error) {
	n := 0
	for _, s := range []string{literal, hexVal, file} {
		if s != "" {
			n++
		}
	}
	switch {
	case n == 0:
		return nil, fmt.Errorf("one of --value, --value-hex, or --value-file is required")
	case n > 1:
		return nil, fmt.Errorf("only one of --value, --value-hex, --value-file may be set")
	case literal != "":
		return []byte(literal), nil
	case hexVal != "":
		return hex.DecodeString(hexVal)
	default:
		return os.ReadFile(file)
	}
}
