// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import "fmt"

// Table names the six abstract tables named in the external interfaces.
type Table string

const (
	TableAgents            Table = "agents"
	TableAuditEvents       Table = "audit_events"
	TableEpisodes          Table = "episodes"
	TableExperiments       Table = "experiments"
	TableOptimizationRules Table = "optimization_rules"
	TableAnchorReceipts    Table = "anchor_receipts"
)

// Key builds a tenant-scoped, table-scoped key: "<table>/<tenant>/<id>".
// Every row in every table is reachable only within its tenant's prefix,
// which is also what makes a per-tenant scan (e.g. audit replay) a single
// prefix iteration.
func Key(table Table, tenant, id string) []byte {
	return []byte(fmt.Sprintf("%s/%s/%s", table, tenant, id))
}

// Prefix builds the scan prefix for every row of table belonging to tenant.
func Prefix(table Table, tenant string) []byte {
	return []byte(fmt.Sprintf("%s/%s/", table, tenant))
}

// SequenceKey builds the key holding a tenant's audit-chain tip pointer
// (the most recent event id), separate from the audit_events rows
// themselves so the tip can be read without a prefix scan.
func SequenceKey(table Table, tenant string) []byte {
	return []byte(fmt.Sprintf("%s/%s/__tip__", table, tenant))
}
