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

// boltshell runs Cypher queries against a Neo4j server or cluster from the
// command line. Connection settings come from flags, environment variables
// (prefix BOLTSHELL_) or a .env file, in that order of precedence.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/robsdedude/neo4j-go-driver/neo4j"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "boltshell [flags] <cypher>",
		Short: "Run a Cypher query against a Neo4j database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), v, strings.Join(args, " "))
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.String("uri", "neo4j://localhost:7687", "connection URI")
	flags.String("username", "neo4j", "user to authenticate as")
	flags.String("password", "", "password to authenticate with")
	flags.String("database", "", "database to run the query on, empty for the home database")
	flags.String("impersonate", "", "user to impersonate")
	flags.Bool("write", false, "route the query to a writer")
	flags.Duration("timeout", 0, "transaction timeout, 0 for the server default")
	flags.Bool("debug", false, "log driver internals to stderr")
	flags.Bool("trace-bolt", false, "print the Bolt messages exchanged with the server")

	// Flags beat environment, environment beats .env file.
	_ = godotenv.Load()
	v.SetEnvPrefix("BOLTSHELL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	return cmd
}

func runQuery(ctx context.Context, v *viper.Viper, cypher string) error {
	logger := log.Void()
	if v.GetBool("debug") {
		logger = &log.Console{Level: log.DEBUG}
	}

	driver, err := neo4j.NewDriver(
		v.GetString("uri"),
		neo4j.BasicAuth(v.GetString("username"), v.GetString("password"), ""),
		func(config *neo4j.Config) {
			config.Log = logger
		},
	)
	if err != nil {
		return err
	}
	defer func() { _ = driver.Close(ctx) }()

	sessionConfig := neo4j.SessionConfig{
		AccessMode:       neo4j.AccessModeRead,
		DatabaseName:     v.GetString("database"),
		ImpersonatedUser: v.GetString("impersonate"),
	}
	if v.GetBool("write") {
		sessionConfig.AccessMode = neo4j.AccessModeWrite
	}
	if v.GetBool("trace-bolt") {
		sessionConfig.BoltLogger = &log.ConsoleBoltLogger{}
	}

	session := driver.NewSession(ctx, sessionConfig)
	defer func() { _ = session.Close(ctx) }()

	var configurers []func(*neo4j.TransactionConfig)
	if timeout := v.GetDuration("timeout"); timeout > 0 {
		configurers = append(configurers, neo4j.WithTxTimeout(timeout))
	}

	start := time.Now()
	result, err := session.Run(ctx, cypher, nil, configurers...)
	if err != nil {
		return describeError(err)
	}

	keys, err := result.Keys()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	rows := 0
	for result.Next(ctx) {
		record := result.Record()
		row := make(map[string]any, len(keys))
		for i, key := range keys {
			row[key] = record.Values[i]
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
		rows++
	}
	if err := result.Err(); err != nil {
		return describeError(err)
	}

	summary, err := result.Consume(ctx)
	if err != nil {
		return describeError(err)
	}
	_, _ = fmt.Fprintf(os.Stderr, "%d rows in %s (bookmark: %s)\n",
		rows, time.Since(start).Round(time.Millisecond), summary.Bookmark)
	return nil
}

// describeError adds a hint for the error classes users hit most.
func describeError(err error) error {
	switch {
	case neo4j.IsConnectivityError(err):
		return fmt.Errorf("%w\ncheck that the server is running and the URI points at its Bolt port", err)
	case neo4j.IsNeo4jError(err):
		var neo4jErr *neo4j.Neo4jError
		errors.As(err, &neo4jErr)
		return fmt.Errorf("server error [%s]: %s", neo4jErr.Code, neo4jErr.Msg)
	default:
		return err
	}
}
