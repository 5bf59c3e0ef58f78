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

package store

import (
	"context"
	"fmt"

	"github.com/sage-x-project/kbs/config"
	"github.com/sage-x-project/kbs/store/memstore"
	"github.com/sage-x-project/kbs/store/mysql"
	"github.com/sage-x-project/kbs/store/postgres"
	"github.com/sage-x-project/kbs/store/sqlite"
)

// Open selects and constructs the backend named by cfg.Type
// ("postgres", "mysql", "sqlite", or "memory"), matching KBS_DB_TYPE's
// accepted values.
func Open(ctx context.Context, cfg *config.DBConfig) (Store, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.NewStore(ctx, &postgres.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Name,
			SSLMode:  "disable",
		})

	case "mysql":
		return mysql.NewStore(ctx, &mysql.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Name,
		})

	case "sqlite":
		return sqlite.NewStore(ctx, cfg.Path)

	case "memory":
		return memstore.NewStore(), nil

	default:
		return nil, fmt.Errorf("store: unknown db type %q", cfg.Type)
	}
}
