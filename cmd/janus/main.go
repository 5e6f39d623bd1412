/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package main

import (
	"fmt"
	"os"

	"github.com/janus-directory/janus/internal/config"
	"github.com/janus-directory/janus/internal/directory"
	"github.com/janus-directory/janus/internal/engine"
	"github.com/janus-directory/janus/internal/link"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
)

func main() {
	logg.ShowDebug = os.Getenv("JANUS_DEBUG") == "true"
	if len(os.Args) != 2 || os.Args[1] != "resync" {
		logg.Fatal("usage: %s resync", os.Args[0])
	}

	cfg := must.Return(config.FromEnvironment())

	ignoreList := must.Return(config.NewIgnoreList(cfg.IgnoreListPath))
	defer ignoreList.Close()

	internalTree := directory.NewTree(directory.Internal, cfg.InternalBaseDN,
		directory.NewProvider(cfg.InternalConnectionOptions(), nil))
	externalTree := directory.NewTree(directory.External, cfg.ExternalBaseDN,
		directory.NewProvider(cfg.ExternalConnectionOptions(), nil))
	registry := link.NewRegistry(internalTree, externalTree, cfg.LinkOptions())

	eng := engine.New(internalTree, externalTree, registry, engine.Options{
		Realm:           cfg.Realm,
		IdmapRangeBegin: cfg.IdmapRangeBegin,
		IdmapRangeEnd:   cfg.IdmapRangeEnd,
		IgnoredGroups:   ignoreList,
	})

	report := must.Return(eng.Resync())
	printReport(report)
	if !report.Errors().IsEmpty() {
		os.Exit(1)
	}
}

func printReport(report engine.Report) {
	for _, entry := range report.Entries {
		if entry.Error == nil {
			fmt.Printf("%-12s %-20s %s\n", entry.State.String(), entry.Kind.String(), entry.DN)
		} else {
			fmt.Printf("%-12s %-20s %s: %s\n", entry.State.String(), entry.Kind.String(), entry.DN, entry.Error.Error())
		}
	}
	fmt.Printf("%d entries checked, %d synchronized, %d stale, %d absent\n",
		len(report.Entries),
		report.CountByState(engine.Synchronized),
		report.CountByState(engine.Stale),
		report.CountByState(engine.Absent))
}
