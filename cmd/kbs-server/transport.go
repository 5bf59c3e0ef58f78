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

package main

import (
	"encoding/json"
	"net/http"

	"github.com/sage-x-project/kbs/attest/errs"
	"github.com/sage-x-project/kbs/health"
	"github.com/sage-x-project/kbs/kbspb"
	"github.com/sage-x-project/kbs/kbsserver"
)

// bundleHandler is the thin JSON transport adapter over
// kbsserver.Server.GetBundle. []byte request/response fields marshal
// as base64 automatically via encoding/json; a real deployment swaps
// this for a generated gRPC service without touching kbsserver.
func bundleHandler(srv *kbsserver.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req kbspb.GetBundleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errs.InvalidArgument("malformed request body"))
			return
		}

		reply, err := srv.GetBundle(r.Context(), &req)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, reply)
	}
}

func secretHandler(srv *kbsserver.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req kbspb.GetSecretRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errs.InvalidArgument("malformed request body"))
			return
		}

		reply, err := srv.GetSecret(r.Context(), &req)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, reply)
	}
}

func healthzHandler(checker *health.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sys := checker.GetSystemHealth(r.Context())

		status := http.StatusOK
		if sys.Status != health.StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, sys)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the wire shape of a rejected request: the typed code and
// message, plus Field when the error carries one (never a policy's
// configured values).
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	kerr, ok := err.(*errs.Error)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: string(errs.CodeInternal), Message: err.Error()})
		return
	}

	writeJSON(w, httpStatusFor(kerr.Code), errorBody{
		Code:    string(kerr.Code),
		Message: kerr.Message,
		Field:   kerr.Field,
	})
}

func httpStatusFor(code errs.Code) int {
	switch code {
	case errs.CodeInvalidArgument, errs.CodeCertChainInvalid:
		return http.StatusBadRequest
	case errs.CodeUnknownConnection:
		return http.StatusNotFound
	case errs.CodeMeasurementMismatch, errs.CodePolicyDenied:
		return http.StatusForbidden
	case errs.CodeSecretNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
