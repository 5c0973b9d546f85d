/*
Copyright 2025 Payhold Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/payhold-io/payhold"
	"github.com/payhold-io/payhold/config"
	"github.com/payhold-io/payhold/database"
	"github.com/payhold-io/payhold/internal/notification"
)

// Payhold represents the CLI application, encapsulating the root Cobra command.
type Payhold struct {
	cmd *cobra.Command
}

// payholdInstance holds the runtime Payhold instance and its configuration,
// shared by all subcommands.
type payholdInstance struct {
	payhold *payhold.Payhold
	cnf     *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and initializes the Payhold instance before
// running any command.
func preRun(app *payholdInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("payhold.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newPayhold, err := setupPayhold(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.payhold = newPayhold
		app.cnf = cnf

		return nil
	}
}

// setupPayhold creates and initializes a new Payhold instance from the
// provided configuration.
func setupPayhold(cfg *config.Configuration) (*payhold.Payhold, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newPayhold, err := payhold.NewPayhold(db)
	if err != nil {
		return nil, fmt.Errorf("error creating payhold: %v", err)
	}
	return newPayhold, nil
}

// NewCLI creates the command-line interface for the Payhold application.
func NewCLI() *Payhold {
	var configFile string
	p := &payholdInstance{}

	var rootCmd = &cobra.Command{
		Use:   "payhold",
		Short: "Escrow ledger for service bookings",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./payhold.json", "Configuration file for payhold")

	rootCmd.PersistentPreRunE = preRun(p)

	rootCmd.AddCommand(serverCommands(p))
	rootCmd.AddCommand(workerCommands(p))
	rootCmd.AddCommand(migrateCommands(p))
	rootCmd.AddCommand(configCommands())

	return &Payhold{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during
// execution.
func (w Payhold) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
