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

var resourceCmd = &cobra.Command{
	Use:   "resource",
	Short: "Manage policy-gated file resource records",
}

var (
	resourcePutID    string
	resourcePutPolID string
	resourcePutType  string
	resourcePutPath  string
)

var resourcePutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or update a resource",
	RunE:  runResourcePut,
}

var resourceGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a resource record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runResourceGet,
}

func init() {
	rootCmd.AddCommand(resourceCmd)
	resourceCmd.AddCommand(resourcePutCmd)
	resourceCmd.AddCommand(resourceGetCmd)

	resourcePutCmd.Flags().StringVar(&resourcePutID, "id", "", "resource id (required)")
	resourcePutCmd.Flags().StringVar(&resourcePutPolID, "policy", "", "policy id governing this resource (required)")
	resourcePutCmd.Flags().StringVar(&resourcePutType, "type", "", "resource type, e.g. \"ca-bundle\" or \"config\" (required)")
	resourcePutCmd.Flags().StringVar(&resourcePutPath, "path", "", "filesystem path kbs-server reads this resource from (required)")
	_ = resourcePutCmd.MarkFlagRequired("id")
	_ = resourcePutCmd.MarkFlagRequired("policy")
	_ = resourcePutCmd.MarkFlagRequired("type")
	_ = resourcePutCmd.MarkFlagRequired("path")
}

func runResourcePut(cmd *cobra.Command, args []string) error {
	r := &store.Resource{ID: resourcePutID, Type: resourcePutType, Path: resourcePutPath, PolID: resourcePutPolID}
	return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
		if err := st.PutResource(ctx, r); err != nil {
			return fmt.Errorf("failed to put resource: %w", err)
		}
		fmt.Printf("resource %q provisioned\n", r.ID)
		return nil
	})
}

func runResourceGet(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
		r, err := st.GetResource(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(r)
	})
}
