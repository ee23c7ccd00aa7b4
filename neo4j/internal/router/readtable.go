/*
 * Copyright (c) "Robsdedude"
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package router

import (
	"context"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/errorutil"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

// readTable tries the routers in order until one of them answers with a
// routing table. Errors that indicate a problem with the request itself
// rather than with the router abort the loop immediately.
func readTable(
	ctx context.Context,
	pool Pool,
	routers []string,
	routerContext map[string]string,
	bookmarks []string,
	database, impersonatedUser string,
	boltLogger log.BoltLogger,
	logger log.Logger,
	logId string,
) (*db.RoutingTable, error) {
	var lastErr error

	for _, router := range routers {
		table, err := readTableFromRouter(ctx, pool, router, routerContext, bookmarks, database, impersonatedUser, boltLogger)
		if err == nil {
			return table, nil
		}
		if errorutil.IsFatalDuringDiscovery(err) {
			return nil, err
		}
		logger.Warnf(log.Router, logId, "Failed to retrieve routing table from '%s': %s", router, err)
		lastErr = &errorutil.ReadRoutingTableError{Err: err, Server: router}
	}

	if lastErr == nil {
		lastErr = &errorutil.ReadRoutingTableError{}
	}
	return nil, lastErr
}

func readTableFromRouter(
	ctx context.Context,
	pool Pool,
	router string,
	routerContext map[string]string,
	bookmarks []string,
	database, impersonatedUser string,
	boltLogger log.BoltLogger,
) (*db.RoutingTable, error) {
	conn, err := pool.Borrow(ctx, []string{router}, true, boltLogger)
	if err != nil {
		return nil, err
	}
	defer pool.Return(ctx, conn)

	return conn.GetRoutingTable(ctx, routerContext, bookmarks, database, impersonatedUser)
}
