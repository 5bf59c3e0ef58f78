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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/sage-x-project/kbs/store"
	"github.com/spf13/cobra"
)

var reportKeypairCmd = &cobra.Command{
	Use:   "report-keypair",
	Short: "Manage ReportData signing keypairs",
}

var (
	reportKeypairPutID    string
	reportKeypairPutPolID string
	reportKeypairPutFile  string
)

var reportKeypairPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Provision a PEM-encoded report keypair from a file",
	RunE:  runReportKeypairPut,
}

var reportKeypairGenCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a P-384 ECDSA keypair and provision it as a report keypair",
	RunE:  runReportKeypairGenerate,
}

var reportKeypairGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a report keypair's metadata as JSON (key material redacted)",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportKeypairGet,
}

func init() {
	rootCmd.AddCommand(reportKeypairCmd)
	reportKeypairCmd.AddCommand(reportKeypairPutCmd)
	reportKeypairCmd.AddCommand(reportKeypairGenCmd)
	reportKeypairCmd.AddCommand(reportKeypairGetCmd)

	reportKeypairPutCmd.Flags().StringVar(&reportKeypairPutID, "id", "", "report keypair id (required)")
	reportKeypairPutCmd.Flags().StringVar(&reportKeypairPutPolID, "policy", "", "policy id governing this keypair (required)")
	reportKeypairPutCmd.Flags().StringVar(&reportKeypairPutFile, "pem-file", "", "PEM file holding the EC private key (required)")
	_ = reportKeypairPutCmd.MarkFlagRequired("id")
	_ = reportKeypairPutCmd.MarkFlagRequired("policy")
	_ = reportKeypairPutCmd.MarkFlagRequired("pem-file")

	reportKeypairGenCmd.Flags().StringVar(&reportKeypairPutID, "id", "", "report keypair id (required)")
	reportKeypairGenCmd.Flags().StringVar(&reportKeypairPutPolID, "policy", "", "policy id governing this keypair (required)")
	_ = reportKeypairGenCmd.MarkFlagRequired("id")
	_ = reportKeypairGenCmd.MarkFlagRequired("policy")
}

func runReportKeypairPut(cmd *cobra.Command, args []string) error {
	pemBytes, err := os.ReadFile(reportKeypairPutFile)
	if err != nil {
		return err
	}
	if _, err := parseECPrivateKeyPEM(pemBytes); err != nil {
		return fmt.Errorf("invalid report keypair: %w", err)
	}

	k := &store.ReportKeypair{ID: reportKeypairPutID, PEM: pemBytes, PolID: reportKeypairPutPolID}
	return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
		if err := st.PutReportKeypair(ctx, k); err != nil {
			return fmt.Errorf("failed to put report keypair: %w", err)
		}
		fmt.Printf("report keypair %q provisioned from %s\n", k.ID, reportKeypairPutFile)
		return nil
	})
}

func runReportKeypairGenerate(cmd *cobra.Command, args []string) error {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	k := &store.ReportKeypair{ID: reportKeypairPutID, PEM: pemBytes, PolID: reportKeypairPutPolID}
	return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
		if err := st.PutReportKeypair(ctx, k); err != nil {
			return fmt.Errorf("failed to put report keypair: %w", err)
		}
		fmt.Printf("report keypair %q generated and provisioned\n", k.ID)
		return nil
	})
}

func runReportKeypairGet(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
		k, err := st.GetReportKeypair(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(struct {
			ID      string `json:"id"`
			PolID   string `json:"pol_id"`
			PEMSize int    `json:"pem_size"`
		}{k.ID, k.PolID, len(k.PEM)})
	})
}

func parseECPrivateKeyPEM(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}
