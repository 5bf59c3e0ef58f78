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
	"encoding/json"
	"fmt"
	"os"

	"github.com/sage-x-project/kbs/store"
	"github.com/sage-x-project/kbs/store/policyfile"
	"github.com/spf13/cobra"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage policy records",
}

var (
	policyPutID              string
	policyPutDigests         []string
	policyPutAllowedPolicies []uint32
	policyPutMinAPIMajor     uint8
	policyPutMinAPIMinor     uint8
	policyPutBuildIDs        []uint8
	policyPutValid           bool
)

var policyPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or update a policy",
	RunE:  runPolicyPut,
}

var policyLoadCmd = &cobra.Command{
	Use:   "load <id> <path>",
	Short: "Load a policy from a default_policy.json-style file and provision it",
	Args:  cobra.ExactArgs(2),
	RunE:  runPolicyLoad,
}

var policyGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a policy record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyGet,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyPutCmd)
	policyCmd.AddCommand(policyLoadCmd)
	policyCmd.AddCommand(policyGetCmd)

	policyPutCmd.Flags().StringVar(&policyPutID, "id", "", "policy id (required)")
	policyPutCmd.Flags().StringSliceVar(&policyPutDigests, "digest", nil, "allowed firmware digest, hex-encoded (repeatable)")
	policyPutCmd.Flags().Uint32SliceVar(&policyPutAllowedPolicies, "allowed-policy", nil, "allowed SEV guest policy bitmask (repeatable)")
	policyPutCmd.Flags().Uint8SliceVar(&policyPutBuildIDs, "build-id", nil, "allowed firmware build id (repeatable)")
	policyPutCmd.Flags().Uint8Var(&policyPutMinAPIMajor, "min-api-major", 0, "minimum required firmware API major version")
	policyPutCmd.Flags().Uint8Var(&policyPutMinAPIMinor, "min-api-minor", 0, "minimum required firmware API minor version")
	policyPutCmd.Flags().BoolVar(&policyPutValid, "valid", false, "whether this policy accepts requests")
	_ = policyPutCmd.MarkFlagRequired("id")
}

func runPolicyPut(cmd *cobra.Command, args []string) error {
	digests, err := decodeDigests(policyPutDigests)
	if err != nil {
		return err
	}
	buildIDs := make([]byte, len(policyPutBuildIDs))
	for i, b := range policyPutBuildIDs {
		buildIDs[i] = byte(b)
	}

	p := &store.Policy{
		ID:              policyPutID,
		AllowedDigests:  digests,
		AllowedPolicies: policyPutAllowedPolicies,
		MinFWAPIMajor:   policyPutMinAPIMajor,
		MinFWAPIMinor:   policyPutMinAPIMinor,
		AllowedBuildIDs: buildIDs,
		Valid:           policyPutValid,
	}
	return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
		if err := st.PutPolicy(ctx, p); err != nil {
			return fmt.Errorf("failed to put policy: %w", err)
		}
		fmt.Printf("policy %q provisioned\n", p.ID)
		return nil
	})
}

func runPolicyLoad(cmd *cobra.Command, args []string) error {
	id, path := args[0], args[1]
	p, err := policyfile.Load(path, id)
	if err != nil {
		return err
	}
	return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
		if err := st.PutPolicy(ctx, p); err != nil {
			return fmt.Errorf("failed to put policy: %w", err)
		}
		fmt.Printf("policy %q loaded from %s\n", id, path)
		return nil
	})
}

func runPolicyGet(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
		p, err := st.GetPolicy(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(p)
	})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
