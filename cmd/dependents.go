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
	"time"

	"github.com/jaffee/commandeer"
	"github.com/opensource-observer/collect/dependents"
	"github.com/spf13/cobra"
)

// DependentsMain is wrapped by NewDependentsCommand and only exported for
// testing purposes.
var DependentsMain *dependents.Main

// NewDependentsCommand returns a new cobra command wrapping DependentsMain.
func NewDependentsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var err error
	DependentsMain = dependents.NewMain()
	DependentsMain.Stderr = stderr
	dependentsCommand := &cobra.Command{
		Use:   "dependents",
		Short: "dependents - record which NPM packages depend on each other",
		Long: `Loads every NPM package entity from the store, makes sure the warehouse
has computed the dependents among them for the configured snapshot, and
records each (dependent, package) pair as a depends-on edge.

With --every the collection is repeated at that interval until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			err = DependentsMain.Run(cmd.Context())
			if err != nil {
				return err
			}
			cmd.PrintErrln("Done: ", time.Since(start))
			return nil
		},
	}
	flags := dependentsCommand.Flags()
	err = commandeer.Flags(flags, DependentsMain)
	if err != nil {
		panic(err)
	}
	return dependentsCommand
}

func init() {
	subcommandFns["dependents"] = NewDependentsCommand
}
