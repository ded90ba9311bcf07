// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.
package cmd

import (
	"io"
	"log"

	"github.com/jaffee/commandeer"
	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/csv"
	"github.com/opensource-observer/collect/dependents"
	"github.com/spf13/cobra"
)

// EntitiesMain is wrapped by NewEntitiesCommand and only exported for
// testing purposes.
var EntitiesMain *csv.Main

// NewEntitiesCommand returns the entities command and its import
// subcommand, which wraps EntitiesMain.
func NewEntitiesCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	EntitiesMain = csv.NewMain()
	EntitiesMain.Stdin = stdin
	EntitiesMain.Log = collect.StdLogger{Logger: log.New(stderr, "", log.LstdFlags)}
	importCommand := &cobra.Command{
		Use:   "import",
		Short: "import - load entities from a CSV file with id, name and type columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return EntitiesMain.Run(cmd.Context())
		},
	}
	if err := commandeer.Flags(importCommand.Flags(), EntitiesMain); err != nil {
		panic(err)
	}
	entitiesCommand := &cobra.Command{
		Use:   "entities",
		Short: "entities - manage the tracked entities collectors read",
	}
	entitiesCommand.AddCommand(importCommand)
	return entitiesCommand
}

// DatasetMain is wrapped by NewDatasetCommand and only exported for testing
// purposes.
var DatasetMain *dependents.DatasetMain

// NewDatasetCommand returns the dataset command and its import subcommand,
// which wraps DatasetMain.
func NewDatasetCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	DatasetMain = dependents.NewDatasetMain()
	DatasetMain.Stdin = stdin
	DatasetMain.Log = collect.StdLogger{Logger: log.New(stderr, "", log.LstdFlags)}
	importCommand := &cobra.Command{
		Use:   "import",
		Short: "import - convert a CSV export of the dependents table into the warehouse dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return DatasetMain.Run(cmd.Context())
		},
	}
	if err := commandeer.Flags(importCommand.Flags(), DatasetMain); err != nil {
		panic(err)
	}
	datasetCommand := &cobra.Command{
		Use:   "dataset",
		Short: "dataset - manage the source datasets the warehouse reads",
	}
	datasetCommand.AddCommand(importCommand)
	return datasetCommand
}

// ArtifactsMain is wrapped by NewArtifactsCommand and only exported for
// testing purposes.
var ArtifactsMain *dependents.ArtifactsMain

// NewArtifactsCommand returns the artifacts command and its list subcommand,
// which wraps ArtifactsMain.
func NewArtifactsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	ArtifactsMain = dependents.NewArtifactsMain()
	ArtifactsMain.Stdout = stdout
	listCommand := &cobra.Command{
		Use:   "list",
		Short: "list - print the names of the artifacts in an object store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ArtifactsMain.Run(cmd.Context())
		},
	}
	if err := commandeer.Flags(listCommand.Flags(), ArtifactsMain); err != nil {
		panic(err)
	}
	artifactsCommand := &cobra.Command{
		Use:   "artifacts",
		Short: "artifacts - inspect materialized artifacts",
	}
	artifactsCommand.AddCommand(listCommand)
	return artifactsCommand
}

func init() {
	subcommandFns["entities"] = NewEntitiesCommand
	subcommandFns["dataset"] = NewDatasetCommand
	subcommandFns["artifacts"] = NewArtifactsCommand
}
